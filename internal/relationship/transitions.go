// Package relationship はアカウント間の関係（フォロー、リクエスト、スクラッチ、ブロック）の
// 状態遷移と、その永続化を担うサービスを提供する。
package relationship

import "github.com/hitoshi/campusconnect/internal/model"

// Op は関係操作の種類。
type Op string

const (
	OpFollow              Op = "follow"
	OpUnfollow            Op = "unfollow"
	OpSendFollowRequest   Op = "sendFollowRequest"
	OpAcceptFollowRequest Op = "acceptFollowRequest"
	OpRejectFollowRequest Op = "rejectFollowRequest"
	OpCancelFollowRequest Op = "cancelFollowRequest"
	OpRemoveFollower      Op = "removeFollower"
	OpBlock               Op = "block"
	OpUnblock             Op = "unblock"
	OpScratch             Op = "scratch"
	OpUnscratch           Op = "unscratch"
)

// Transition は2アカウントの関係集合を検証してから変更する純粋関数。
// 事前条件を満たさない場合は何も変更せずにエラーを返す。
type Transition func(actor, target *model.Account) error

var transitions = map[Op]Transition{
	OpFollow:              follow,
	OpUnfollow:            unfollow,
	OpSendFollowRequest:   sendFollowRequest,
	OpAcceptFollowRequest: acceptFollowRequest,
	OpRejectFollowRequest: rejectFollowRequest,
	OpCancelFollowRequest: cancelFollowRequest,
	OpRemoveFollower:      removeFollower,
	OpBlock:               block,
	OpUnblock:             unblock,
	OpScratch:             scratch,
	OpUnscratch:           unscratch,
}

// TransitionFor は操作に対応する遷移関数を返す。
func TransitionFor(op Op) (Transition, bool) {
	t, ok := transitions[op]
	return t, ok
}

// outgoing と incoming は関係種別ごとの対になる集合のキー。
func outgoing(kind model.RelationKind) model.RelationKey {
	return model.RelationKey{Kind: kind, Side: model.SideOutgoing}
}

func incoming(kind model.RelationKind) model.RelationKey {
	return model.RelationKey{Kind: kind, Side: model.SideIncoming}
}

// linked は from から to への kind の辺が存在するかを返す。
// 判定は to 側の incoming 集合で行う。
func linked(from, to *model.Account, kind model.RelationKind) bool {
	return to.Set(incoming(kind)).Has(from.ID)
}

// link は from から to への辺を両側の集合に追加する。
func link(from, to *model.Account, kind model.RelationKind) {
	from.Set(outgoing(kind)).Add(to.ID)
	to.Set(incoming(kind)).Add(from.ID)
}

// unlink は from から to への辺を両側の集合から取り除く。
func unlink(from, to *model.Account, kind model.RelationKind) {
	from.Set(outgoing(kind)).Remove(to.ID)
	to.Set(incoming(kind)).Remove(from.ID)
}

// blockedBetween はどちらかが相手をブロックしているかを返す。
func blockedBetween(a, b *model.Account) bool {
	return linked(a, b, model.RelationBlock) || linked(b, a, model.RelationBlock)
}

func follow(actor, target *model.Account) error {
	if blockedBetween(actor, target) {
		return model.NewBlockedError()
	}
	if linked(actor, target, model.RelationFollow) {
		return model.NewAlreadyFollowingError()
	}
	if target.FollowPolicy == model.FollowPolicyApproval {
		return model.NewFollowRequiresApprovalError()
	}
	link(actor, target, model.RelationFollow)
	target.Set(model.FollowRequests).Remove(actor.ID)
	return nil
}

func unfollow(actor, target *model.Account) error {
	if !linked(actor, target, model.RelationFollow) {
		return model.NewNotFollowingError()
	}
	unlink(actor, target, model.RelationFollow)
	return nil
}

func sendFollowRequest(actor, target *model.Account) error {
	if blockedBetween(actor, target) {
		return model.NewBlockedError()
	}
	if linked(actor, target, model.RelationFollow) {
		return model.NewAlreadyFollowingError()
	}
	if !target.Set(model.FollowRequests).Add(actor.ID) {
		return model.NewRequestAlreadySentError()
	}
	return nil
}

// acceptFollowRequest は actor 宛ての requester からのリクエストを承認する。
func acceptFollowRequest(actor, requester *model.Account) error {
	if !actor.Set(model.FollowRequests).Remove(requester.ID) {
		return model.NewNoSuchRequestError()
	}
	link(requester, actor, model.RelationFollow)
	return nil
}

func rejectFollowRequest(actor, requester *model.Account) error {
	if !actor.Set(model.FollowRequests).Remove(requester.ID) {
		return model.NewNoSuchRequestError()
	}
	return nil
}

// cancelFollowRequest は actor が target に送ったリクエストを取り下げる。
func cancelFollowRequest(actor, target *model.Account) error {
	if !target.Set(model.FollowRequests).Remove(actor.ID) {
		return model.NewNoSuchRequestError()
	}
	return nil
}

// removeFollower は follower から actor へのフォローを actor 側から解除する。
func removeFollower(actor, follower *model.Account) error {
	if !linked(follower, actor, model.RelationFollow) {
		return model.NewNotFollowingError()
	}
	unlink(follower, actor, model.RelationFollow)
	return nil
}

// block は target をブロックし、双方向のフォロー・スクラッチ・リクエストを解消する。
func block(actor, target *model.Account) error {
	if linked(actor, target, model.RelationBlock) {
		return model.NewAlreadyBlockedError()
	}
	link(actor, target, model.RelationBlock)

	for _, kind := range []model.RelationKind{model.RelationFollow, model.RelationScratch} {
		unlink(actor, target, kind)
		unlink(target, actor, kind)
	}
	actor.Set(model.FollowRequests).Remove(target.ID)
	target.Set(model.FollowRequests).Remove(actor.ID)
	return nil
}

// unblock はブロックを解除する。解消済みの関係は復元しない。
func unblock(actor, target *model.Account) error {
	if !linked(actor, target, model.RelationBlock) {
		return model.NewNotBlockedError()
	}
	unlink(actor, target, model.RelationBlock)
	return nil
}

func scratch(actor, target *model.Account) error {
	if blockedBetween(actor, target) {
		return model.NewBlockedError()
	}
	if linked(actor, target, model.RelationScratch) {
		return model.NewAlreadyScratchingError()
	}
	link(actor, target, model.RelationScratch)
	return nil
}

func unscratch(actor, target *model.Account) error {
	if !linked(actor, target, model.RelationScratch) {
		return model.NewNotScratchingError()
	}
	unlink(actor, target, model.RelationScratch)
	return nil
}
