package form

import "github.com/hitoshi/taskboard/internal/model"

// CommentProjection はタスク詳細ページに表示するコメント一覧のローカルな投影。
// 作成・削除の直後はストアを再取得せずにこの投影を更新して描画する。
// GETによる画面遷移ごとにResyncでストアの内容へ置き換える。
type CommentProjection struct {
	comments []*model.Comment
}

// NewCommentProjection はストアから取得したコメントで投影を初期化する。
func NewCommentProjection(fresh []*model.Comment) *CommentProjection {
	p := &CommentProjection{}
	p.Resync(fresh)
	return p
}

// Append は作成に成功したコメントを末尾に追加する。IDはストアが採番したものを使う。
func (p *CommentProjection) Append(c *model.Comment) {
	if c == nil {
		return
	}
	p.comments = append(p.comments, c)
}

// Remove は指定IDのコメントを投影から取り除く。該当がなければfalseを返す。
func (p *CommentProjection) Remove(id string) bool {
	for i, c := range p.comments {
		if c.ID == id {
			p.comments = append(p.comments[:i], p.comments[i+1:]...)
			return true
		}
	}
	return false
}

// Resync は投影をストアから取得した一覧で置き換える。
func (p *CommentProjection) Resync(fresh []*model.Comment) {
	p.comments = make([]*model.Comment, 0, len(fresh))
	for _, c := range fresh {
		if c != nil {
			p.comments = append(p.comments, c)
		}
	}
}

// Items は投影中のコメントを表示順に返す。
func (p *CommentProjection) Items() []*model.Comment {
	out := make([]*model.Comment, len(p.comments))
	copy(out, p.comments)
	return out
}

// Len は投影中のコメント数を返す。
func (p *CommentProjection) Len() int {
	return len(p.comments)
}

// CanDelete は閲覧者がコメントの削除操作を行えるかを返す。
// 投稿者本人のみ。未ログインの閲覧者には常にfalse。
func CanDelete(c *model.Comment, viewer *model.UserIdentity) bool {
	if c == nil || viewer == nil || viewer.ID == "" {
		return false
	}
	return c.AuthorID == viewer.ID
}
