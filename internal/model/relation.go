package model

// RelationKind はアカウント間の有向関係の種類を表す。
type RelationKind string

const (
	// RelationFollow はフォロー関係。
	RelationFollow RelationKind = "follow"
	// RelationScratch はスクラッチ関係。フォローと同じ仕組みで独立に管理される。
	RelationScratch RelationKind = "scratch"
	// RelationBlock はブロック関係。
	RelationBlock RelationKind = "block"
)

// RelationSide は関係のどちら側の集合かを表す。
type RelationSide string

const (
	// SideOutgoing は自分から相手への関係（following, scratching, blocked）。
	SideOutgoing RelationSide = "outgoing"
	// SideIncoming は相手から自分への関係（followers, scratchers, blockedBy）。
	SideIncoming RelationSide = "incoming"
	// SidePending は承認待ちの受信リクエスト（followRequests）。
	SidePending RelationSide = "pending"
)

// RelationKey は関係集合を識別するキー。
type RelationKey struct {
	Kind RelationKind
	Side RelationSide
}

// 定義済みの関係集合
var (
	Following      = RelationKey{Kind: RelationFollow, Side: SideOutgoing}
	Followers      = RelationKey{Kind: RelationFollow, Side: SideIncoming}
	FollowRequests = RelationKey{Kind: RelationFollow, Side: SidePending}
	Scratching     = RelationKey{Kind: RelationScratch, Side: SideOutgoing}
	Scratchers     = RelationKey{Kind: RelationScratch, Side: SideIncoming}
	Blocked        = RelationKey{Kind: RelationBlock, Side: SideOutgoing}
	BlockedBy      = RelationKey{Kind: RelationBlock, Side: SideIncoming}
)

// AllRelationKeys はアカウントが保持する全ての関係集合のキーを返す。
func AllRelationKeys() []RelationKey {
	return []RelationKey{
		Following, Followers, FollowRequests,
		Scratching, Scratchers,
		Blocked, BlockedBy,
	}
}

// Mirror は相手側のアカウントで対になる集合のキーを返す。
// pending には対がないため ok=false を返す。
func (k RelationKey) Mirror() (RelationKey, bool) {
	switch k.Side {
	case SideOutgoing:
		return RelationKey{Kind: k.Kind, Side: SideIncoming}, true
	case SideIncoming:
		return RelationKey{Kind: k.Kind, Side: SideOutgoing}, true
	default:
		return RelationKey{}, false
	}
}

// String はログ用の表現を返す。
func (k RelationKey) String() string {
	return string(k.Kind) + "/" + string(k.Side)
}

// IDSet は挿入順を保持するアカウントIDの集合。
// 重複は持たない。ゼロ値は空集合として利用できる。
type IDSet struct {
	ids   []string
	index map[string]struct{}
}

// NewIDSet は指定IDで初期化したIDSetを生成する。重複は無視される。
func NewIDSet(ids ...string) *IDSet {
	s := &IDSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Has はIDが集合に含まれるかを返す。
func (s *IDSet) Has(id string) bool {
	if s == nil || s.index == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// Add はIDを末尾に追加する。既に含まれている場合はfalseを返す。
func (s *IDSet) Add(id string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

// Remove はIDを取り除く。含まれていない場合はfalseを返す。
func (s *IDSet) Remove(id string) bool {
	if !s.Has(id) {
		return false
	}
	delete(s.index, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
	return true
}

// Len は要素数を返す。
func (s *IDSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs は挿入順のIDスライスのコピーを返す。
func (s *IDSet) IDs() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Clone は集合の複製を返す。
func (s *IDSet) Clone() *IDSet {
	return NewIDSet(s.IDs()...)
}

// Relations はアカウントが保持する関係集合の全体。
type Relations map[RelationKey]*IDSet

// Clone は全ての集合を複製する。
func (r Relations) Clone() Relations {
	out := make(Relations, len(r))
	for k, set := range r {
		out[k] = set.Clone()
	}
	return out
}

// RelationChange は関係集合の1要素の追加または削除を表す。
type RelationChange struct {
	Key    RelationKey
	PeerID string
}

// DiffRelations はbeforeからafterへの差分を返す。
// addedは挿入順、removedはbeforeでの出現順に並ぶ。
func DiffRelations(before, after Relations) (added, removed []RelationChange) {
	for _, key := range AllRelationKeys() {
		b, a := before[key], after[key]
		for _, id := range a.IDs() {
			if !b.Has(id) {
				added = append(added, RelationChange{Key: key, PeerID: id})
			}
		}
		for _, id := range b.IDs() {
			if !a.Has(id) {
				removed = append(removed, RelationChange{Key: key, PeerID: id})
			}
		}
	}
	return added, removed
}
