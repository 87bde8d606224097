package dynamo

import (
	"encoding/json"

	"github.com/pregram/pregram/models"
)

type dynamoUser struct {
	PK              string `dynamodbav:"PK"`
	SK              string `dynamodbav:"SK"`
	Id              string `dynamodbav:"Id"`
	Provider        string `dynamodbav:"Provider"`
	ProviderId      string `dynamodbav:"ProviderId"`
	Username        string `dynamodbav:"Username"`
	Created         int64  `dynamodbav:"Created"`
	MaxAccountSlots int    `dynamodbav:"MaxAccountSlots"`
}

// Map domain User -> Dynamo
func userToDynamo(u models.User) dynamoUser {
	return dynamoUser{
		PK:              "USER#" + u.Provider + "#" + u.ProviderId,
		SK:              "PROFILE",
		Id:              u.Id,
		Provider:        u.Provider,
		ProviderId:      u.ProviderId,
		Username:        u.Username,
		Created:         u.Created,
		MaxAccountSlots: u.MaxAccountSlots,
	}
}

// Map Dynamo -> domain User
func userFromDynamo(du dynamoUser) models.User {
	return models.User{
		Id:              du.Id,
		Username:        du.Username,
		Provider:        du.Provider,
		ProviderId:      du.ProviderId,
		Created:         du.Created,
		MaxAccountSlots: du.MaxAccountSlots,
	}
}

// Image sequences are stored as opaque JSON blobs. The models JSON
// tags exclude SourceRef, so raw upload bytes never reach the table;
// restoreImages marks the gap on the way back out.
type dynamoProject struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	OwnerId   string `dynamodbav:"OwnerId"`
	Name      string `dynamodbav:"Name"`
	Kind      string `dynamodbav:"Kind"`
	Images    []byte `dynamodbav:"Images"`
	CreatedAt int64  `dynamodbav:"CreatedAt"`
	UpdatedAt int64  `dynamodbav:"UpdatedAt"`
}

func projectToDynamo(p models.Project) (dynamoProject, error) {
	imagesBytes, err := json.Marshal(p.Images)
	if err != nil {
		return dynamoProject{}, err
	}

	return dynamoProject{
		PK:        "PROJECT#" + p.OwnerId,
		SK:        p.Id,
		OwnerId:   p.OwnerId,
		Name:      p.Name,
		Kind:      p.Kind.String(),
		Images:    imagesBytes,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}, nil
}

func projectFromDynamo(dp dynamoProject) (models.Project, error) {
	var images []models.ImageRecord
	if len(dp.Images) > 0 {
		if err := json.Unmarshal(dp.Images, &images); err != nil {
			return models.Project{}, err
		}
	}

	kind := models.KindFeed
	if dp.Kind == "reels" {
		kind = models.KindReels
	}

	return models.Project{
		Id:        dp.SK,
		OwnerId:   dp.OwnerId,
		Name:      dp.Name,
		Kind:      kind,
		Images:    restoreImages(images),
		CreatedAt: dp.CreatedAt,
		UpdatedAt: dp.UpdatedAt,
	}, nil
}

type dynamoAccount struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	OwnerId   string `dynamodbav:"OwnerId"`
	Username  string `dynamodbav:"Username"`
	AvatarURI string `dynamodbav:"AvatarURI"`
}

func accountToDynamo(a models.Account) dynamoAccount {
	return dynamoAccount{
		PK:        "ACCOUNT#" + a.OwnerId,
		SK:        a.Id,
		OwnerId:   a.OwnerId,
		Username:  a.Username,
		AvatarURI: a.AvatarURI,
	}
}

func accountFromDynamo(da dynamoAccount) models.Account {
	return models.Account{
		Id:        da.SK,
		OwnerId:   da.OwnerId,
		Username:  da.Username,
		AvatarURI: da.AvatarURI,
	}
}

// Focus pointer: which account the user is currently editing as.
type dynamoFocus struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	AccountId string `dynamodbav:"AccountId"`
}

type dynamoBoardSet struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	AccountId string `dynamodbav:"AccountId"`
	ProjectId string `dynamodbav:"ProjectId"`
	Boards    []byte `dynamodbav:"Boards"`
}

func boardSetToDynamo(bs models.BoardSet) (dynamoBoardSet, error) {
	boardsBytes, err := json.Marshal(bs.Boards)
	if err != nil {
		return dynamoBoardSet{}, err
	}

	return dynamoBoardSet{
		PK:        "LAYOUTS#" + bs.AccountId,
		SK:        "SET",
		AccountId: bs.AccountId,
		ProjectId: bs.ProjectId,
		Boards:    boardsBytes,
	}, nil
}

func boardSetFromDynamo(dbs dynamoBoardSet) (models.BoardSet, error) {
	var boards []models.LayoutBoard
	if len(dbs.Boards) > 0 {
		if err := json.Unmarshal(dbs.Boards, &boards); err != nil {
			return models.BoardSet{}, err
		}
	}

	for i := range boards {
		boards[i].Images = restoreImages(boards[i].Images)
	}

	return models.BoardSet{
		AccountId: dbs.AccountId,
		ProjectId: dbs.ProjectId,
		Boards:    boards,
	}, nil
}

// restoreImages flags reloaded uploads as having lost their source
// bytes. Existing-feed records never owned bytes, so they pass
// through untouched.
func restoreImages(images []models.ImageRecord) []models.ImageRecord {
	for i := range images {
		if images[i].IsUserUploaded && len(images[i].SourceRef) == 0 {
			images[i].Restored = true
		}
	}
	return images
}
