package aichat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ChatEntry は会話履歴の1件。
type ChatEntry struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// Completer は会話履歴とプロンプトから応答文を生成する。
type Completer interface {
	Complete(ctx context.Context, prompt string, chatlog []ChatEntry) (string, error)
}

type completionRequest struct {
	Prompt   string      `json:"prompt"`
	ChatData []ChatEntry `json:"chatData"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// HTTPCompleter は外部の補完サーバーへJSONでリクエストするCompleter。
type HTTPCompleter struct {
	client   *http.Client
	endpoint string
}

// NewHTTPCompleter はHTTPCompleterを生成する。
// client にはSSRF防止付きのクライアントを渡す。
func NewHTTPCompleter(client *http.Client, endpoint string) *HTTPCompleter {
	return &HTTPCompleter{client: client, endpoint: endpoint}
}

// Complete は補完サーバーの choices[0].text を返す。
func (c *HTTPCompleter) Complete(ctx context.Context, prompt string, chatlog []ChatEntry) (string, error) {
	if chatlog == nil {
		chatlog = []ChatEntry{}
	}
	body, err := json.Marshal(completionRequest{Prompt: prompt, ChatData: chatlog})
	if err != nil {
		return "", fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("補完サーバーへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("補完サーバーがエラーを返しました: status %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("応答の解析に失敗しました: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("応答に choices が含まれていません")
	}
	return out.Choices[0].Text, nil
}

// ErrNotConfigured は補完サーバーが設定されていない場合のエラー。
var ErrNotConfigured = errors.New("補完サーバーが設定されていません")

// Unconfigured は常に ErrNotConfigured を返すCompleter。AI_SERVER_ADDR 未設定時に使う。
type Unconfigured struct{}

// Complete は ErrNotConfigured を返す。
func (Unconfigured) Complete(context.Context, string, []ChatEntry) (string, error) {
	return "", ErrNotConfigured
}

// compile-time interface check
var (
	_ Completer = (*HTTPCompleter)(nil)
	_ Completer = Unconfigured{}
)
