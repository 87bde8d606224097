package models

type User struct {
	Id              string
	Username        string
	Provider        string
	ProviderId      string
	Created         int64
	MaxAccountSlots int
}

type ProjectKind int

const (
	KindFeed ProjectKind = iota
	KindReels
)

func (k ProjectKind) String() string {
	if k == KindReels {
		return "reels"
	}
	return "feed"
}

// ImageRecord is one picture in a project or layout board. SourceRef
// holds the raw upload bytes for images added in this session only;
// it is never serialized. Records loaded back from the store carry an
// empty SourceRef and Restored=true instead of a fabricated stand-in.
type ImageRecord struct {
	Id             string `json:"id"`
	PreviewURI     string `json:"previewUri"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	IsUserUploaded bool   `json:"isUserUploaded"`
	Restored       bool   `json:"restored,omitempty"`
	SourceRef      []byte `json:"-"`
}

type Project struct {
	Id        string        `json:"id"`
	OwnerId   string        `json:"ownerId"`
	Name      string        `json:"name"`
	Kind      ProjectKind   `json:"kind"`
	Images    []ImageRecord `json:"images"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

type Account struct {
	Id        string `json:"id"`
	OwnerId   string `json:"ownerId"`
	Username  string `json:"username"`
	AvatarURI string `json:"avatarUri"`
}

// LayoutBoard is one staged arrangement of a grid.
type LayoutBoard struct {
	Id     string        `json:"id"`
	Images []ImageRecord `json:"images"`
}

// BoardSet is the unit of layout persistence: all boards an account
// holds for its project, written whole on every settled mutation.
type BoardSet struct {
	AccountId string        `json:"accountId"`
	ProjectId string        `json:"projectId"`
	Boards    []LayoutBoard `json:"boards"`
}
