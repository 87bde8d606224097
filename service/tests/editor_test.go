package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	cachemocks "github.com/pregram/pregram/cache/mocks"
	"github.com/pregram/pregram/models"
	mqmocks "github.com/pregram/pregram/mq/mocks"
	"github.com/pregram/pregram/service"
	"github.com/pregram/pregram/store"
	storemocks "github.com/pregram/pregram/store/mocks"
	"github.com/pregram/pregram/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// Helper to setup the service with mocks
func setupService(t *testing.T) (*service.Service, *storemocks.MockStore, *cachemocks.MockCache, *mqmocks.MockMQ, *worker.LayoutFlusher) {
	mockStore := new(storemocks.MockStore)
	mockCache := new(cachemocks.MockCache)
	mockMQ := new(mqmocks.MockMQ)

	// Real flusher is used; tests verify snapshots are pushed to its channel
	layoutFlusher := worker.NewLayoutFlusher(mockStore, 1000)
	feed := service.NewInstagramFeed("http://localhost:9999", "client", "secret", "http://localhost/callback")

	svc, err := service.NewService(
		mockStore,
		mockCache,
		mockMQ,
		layoutFlusher,
		feed,
		nil,
		[]byte("secret"),
	)
	assert.NoError(t, err)

	return svc, mockStore, mockCache, mockMQ, layoutFlusher
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

func testUser() models.User {
	return models.User{
		Id:              "user1",
		Provider:        "google",
		ProviderId:      "123",
		Username:        "tester@example.com",
		MaxAccountSlots: 1,
	}
}

func uploadedImage(id string) models.ImageRecord {
	return models.ImageRecord{
		Id:             id,
		PreviewURI:     "data:image/png;base64,AAAA",
		Width:          100,
		Height:         100,
		IsUserUploaded: true,
	}
}

func feedImage(id string) models.ImageRecord {
	return models.ImageRecord{
		Id:             id,
		PreviewURI:     "data:image/svg+xml;base64,AAAA",
		Width:          480,
		Height:         600,
		IsUserUploaded: false,
	}
}

func drainSnapshot(t *testing.T, flusher *worker.LayoutFlusher) models.BoardSet {
	select {
	case set := <-flusher.SnapshotCh:
		return set
	case <-time.After(1 * time.Second):
		assert.FailNow(t, "timed out waiting for flusher snapshot")
		return models.BoardSet{}
	}
}

func TestOpenEditor_EmptyProject_SeedsPlaceholderFeed(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	project := models.Project{Id: "proj1", OwnerId: user.Id, Name: "Launch", Images: []models.ImageRecord{}}

	mockStore.On("GetBoardSet", ctx, "acct1").Return(models.BoardSet{}, store.ErrItemNotFound)
	mockStore.On("GetProject", ctx, user.Id, "proj1").Return(project, nil)
	mockStore.On("PutProject", ctx, mock.MatchedBy(func(p models.Project) bool {
		return p.Id == "proj1" && len(p.Images) == 9
	})).Return(nil)
	mockCache.On("Publish", mock.Anything, "account:acct1", mock.Anything).Return(nil)

	boardSet, err := svc.OpenEditor(ctx, user, "acct1", "proj1")
	assert.NoError(t, err)
	assert.Equal(t, "acct1", boardSet.AccountId)
	assert.Equal(t, "proj1", boardSet.ProjectId)
	assert.Len(t, boardSet.Boards, 1)
	assert.NotEmpty(t, boardSet.Boards[0].Id)

	// A fresh empty project starts as a full board of placeholders
	images := boardSet.Boards[0].Images
	assert.Len(t, images, 9)
	for _, img := range images {
		assert.False(t, img.IsUserUploaded)
		assert.Equal(t, 480, img.Width)
		assert.Equal(t, 600, img.Height)
	}

	// The synthesized layout is handed to the flusher
	snapshot := drainSnapshot(t, flusher)
	assert.Equal(t, "acct1", snapshot.AccountId)
	mockStore.AssertCalled(t, "PutProject", ctx, mock.Anything)
}

func TestOpenEditor_UploadsOnly_SeedsPlaceholderFeed(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	project := models.Project{
		Id:      "proj1",
		OwnerId: user.Id,
		Name:    "Launch",
		Images:  []models.ImageRecord{uploadedImage("u1")},
	}

	mockStore.On("GetBoardSet", ctx, "acct1").Return(models.BoardSet{}, store.ErrItemNotFound)
	mockStore.On("GetProject", ctx, user.Id, "proj1").Return(project, nil)
	// Placeholder feed is mirrored into the project
	mockStore.On("PutProject", ctx, mock.MatchedBy(func(p models.Project) bool {
		return p.Id == "proj1" && len(p.Images) == 10
	})).Return(nil)
	mockCache.On("Publish", mock.Anything, "account:acct1", mock.Anything).Return(nil)

	boardSet, err := svc.OpenEditor(ctx, user, "acct1", "proj1")
	assert.NoError(t, err)
	assert.Len(t, boardSet.Boards, 1)

	images := boardSet.Boards[0].Images
	assert.Len(t, images, 10) // 1 upload + 9 placeholders

	// Upload first, placeholders after
	assert.Equal(t, "u1", images[0].Id)
	for _, img := range images[1:] {
		assert.False(t, img.IsUserUploaded)
		assert.Equal(t, 480, img.Width)
		assert.Equal(t, 600, img.Height)
	}

	drainSnapshot(t, flusher)
	mockStore.AssertCalled(t, "PutProject", ctx, mock.Anything)
}

func TestOpenEditor_AdoptsPersistedSnapshot(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	persisted := models.BoardSet{
		AccountId: "acct1",
		ProjectId: "proj1",
		Boards: []models.LayoutBoard{
			{Id: "board1", Images: []models.ImageRecord{uploadedImage("u1"), feedImage("f1")}},
		},
	}

	mockStore.On("GetBoardSet", ctx, "acct1").Return(persisted, nil)
	mockStore.On("GetProject", ctx, user.Id, "proj1").Return(models.Project{Id: "proj1", OwnerId: user.Id}, nil)

	boardSet, err := svc.OpenEditor(ctx, user, "acct1", "proj1")
	assert.NoError(t, err)
	assert.Equal(t, persisted.Boards, boardSet.Boards)
	// Adopting a snapshot does not rewrite anything
	mockStore.AssertNotCalled(t, "PutProject", mock.Anything, mock.Anything)
}

func TestOpenEditor_PersistedPointerWins(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	persisted := models.BoardSet{
		AccountId: "acct1",
		ProjectId: "persistedProj",
		Boards:    []models.LayoutBoard{{Id: "board1", Images: []models.ImageRecord{}}},
	}

	mockStore.On("GetBoardSet", ctx, "acct1").Return(persisted, nil)
	mockStore.On("GetProject", ctx, user.Id, "persistedProj").Return(models.Project{Id: "persistedProj", OwnerId: user.Id}, nil)

	// Client asked for a different project; the snapshot decides
	boardSet, err := svc.OpenEditor(ctx, user, "acct1", "requestedProj")
	assert.NoError(t, err)
	assert.Equal(t, "persistedProj", boardSet.ProjectId)
	mockStore.AssertNotCalled(t, "GetProject", ctx, user.Id, "requestedProj")
}

func TestOpenEditor_MissingProjectBehindSnapshot_Recovered(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	persisted := models.BoardSet{
		AccountId: "acct1",
		ProjectId: "goneProj",
		Boards:    []models.LayoutBoard{{Id: "board1", Images: []models.ImageRecord{feedImage("f1")}}},
	}

	mockStore.On("GetBoardSet", ctx, "acct1").Return(persisted, nil)
	mockStore.On("GetProject", ctx, user.Id, "goneProj").Return(models.Project{}, store.ErrItemNotFound)
	mockStore.On("PutProject", ctx, mock.MatchedBy(func(p models.Project) bool {
		return p.Id == "goneProj" && len(p.Images) == 1
	})).Return(nil)

	boardSet, err := svc.OpenEditor(ctx, user, "acct1", "goneProj")
	assert.NoError(t, err)
	assert.Equal(t, "goneProj", boardSet.ProjectId)
	mockStore.AssertCalled(t, "PutProject", ctx, mock.Anything)
}

// Prepares mocks for a ready session over a persisted one-board snapshot.
func setupReadySession(mockStore *storemocks.MockStore, mockCache *cachemocks.MockCache, user models.User, boardImages []models.ImageRecord) models.Project {
	persisted := models.BoardSet{
		AccountId: "acct1",
		ProjectId: "proj1",
		Boards:    []models.LayoutBoard{{Id: "board1", Images: boardImages}},
	}
	project := models.Project{
		Id:      "proj1",
		OwnerId: user.Id,
		Name:    "Launch",
		Images:  append([]models.ImageRecord{}, boardImages...),
	}

	mockStore.On("GetBoardSet", mock.Anything, "acct1").Return(persisted, nil)
	mockStore.On("GetProject", mock.Anything, user.Id, "proj1").Return(project, nil)
	mockCache.On("Publish", mock.Anything, "account:acct1", mock.Anything).Return(nil)

	return project
}

func TestAddImagesToBoard_PrependsAndMirrors(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{feedImage("f1")})
	mockStore.On("PutProject", mock.Anything, mock.Anything).Return(nil)

	invalid := models.ImageRecord{Id: "", Width: 0, Height: 0}
	boardSet, rejected, err := svc.AddImagesToBoard(ctx, user, "acct1", "board1", []models.ImageRecord{uploadedImage("u1"), invalid})

	assert.NoError(t, err)
	assert.Len(t, rejected, 1)

	images := boardSet.Boards[0].Images
	assert.Len(t, images, 2)
	assert.Equal(t, "u1", images[0].Id)
	assert.Equal(t, "f1", images[1].Id)

	drainSnapshot(t, flusher)
	mockStore.AssertCalled(t, "PutProject", mock.Anything, mock.Anything)
}

func TestAddImagesToBoard_UnknownBoard_SelfHeals(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{feedImage("f1")})
	mockStore.On("PutProject", mock.Anything, mock.Anything).Return(nil)

	boardSet, rejected, err := svc.AddImagesToBoard(ctx, user, "acct1", "noSuchBoard", []models.ImageRecord{uploadedImage("u1")})

	assert.NoError(t, err)
	assert.Empty(t, rejected)
	assert.Len(t, boardSet.Boards, 2)
	assert.Equal(t, "u1", boardSet.Boards[1].Images[0].Id)

	drainSnapshot(t, flusher)
}

func TestReorderBoard_ReappliesUploadedFirst(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	u1 := uploadedImage("u1")
	f1 := feedImage("f1")
	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{u1, f1})
	mockStore.On("PutProject", mock.Anything, mock.Anything).Return(nil)

	// Client tries to drag the feed image in front of the upload
	boardSet, err := svc.ReorderBoard(ctx, user, "acct1", "board1", []models.ImageRecord{f1, u1})
	assert.NoError(t, err)

	images := boardSet.Boards[0].Images
	assert.Equal(t, "u1", images[0].Id)
	assert.Equal(t, "f1", images[1].Id)

	drainSnapshot(t, flusher)
}

func TestReorderBoard_PreservesOrderWithinGroups(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	u1, u2 := uploadedImage("u1"), uploadedImage("u2")
	f1, f2 := feedImage("f1"), feedImage("f2")
	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{u1, u2, f1, f2})
	mockStore.On("PutProject", mock.Anything, mock.Anything).Return(nil)

	boardSet, err := svc.ReorderBoard(ctx, user, "acct1", "board1", []models.ImageRecord{f2, u2, f1, u1})
	assert.NoError(t, err)

	ids := []string{}
	for _, img := range boardSet.Boards[0].Images {
		ids = append(ids, img.Id)
	}
	assert.Equal(t, []string{"u2", "u1", "f2", "f1"}, ids)

	drainSnapshot(t, flusher)
}

func TestRemoveImageFromBoard_FeedImageRejected(t *testing.T) {
	svc, mockStore, mockCache, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{uploadedImage("u1"), feedImage("f1")})

	_, err := svc.RemoveImageFromBoard(ctx, user, "acct1", "board1", "f1")
	assert.ErrorIs(t, err, service.ErrNotUploaded)
	mockStore.AssertNotCalled(t, "PutProject", mock.Anything, mock.Anything)
}

func TestRemoveImageFromBoard_AbsentIsNoOp(t *testing.T) {
	svc, mockStore, mockCache, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{uploadedImage("u1")})

	boardSet, err := svc.RemoveImageFromBoard(ctx, user, "acct1", "board1", "ghost")
	assert.NoError(t, err)
	assert.Len(t, boardSet.Boards[0].Images, 1)
	mockStore.AssertNotCalled(t, "PutProject", mock.Anything, mock.Anything)
}

func TestRemoveImageFromBoard_UploadRemovedAndMirrored(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{uploadedImage("u1"), feedImage("f1")})
	mockStore.On("PutProject", mock.Anything, mock.MatchedBy(func(p models.Project) bool {
		for _, img := range p.Images {
			if img.Id == "u1" {
				return false
			}
		}
		return true
	})).Return(nil)

	boardSet, err := svc.RemoveImageFromBoard(ctx, user, "acct1", "board1", "u1")
	assert.NoError(t, err)
	assert.Len(t, boardSet.Boards[0].Images, 1)
	assert.Equal(t, "f1", boardSet.Boards[0].Images[0].Id)

	drainSnapshot(t, flusher)
	mockStore.AssertCalled(t, "PutProject", mock.Anything, mock.Anything)
}

func TestDuplicateBoard_AppendsCopyWithFreshUploadIds(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	persisted := models.BoardSet{
		AccountId: "acct1",
		ProjectId: "proj1",
		Boards: []models.LayoutBoard{
			{Id: "board1", Images: []models.ImageRecord{uploadedImage("u1"), feedImage("f1")}},
			{Id: "board2", Images: []models.ImageRecord{feedImage("f2")}},
		},
	}
	mockStore.On("GetBoardSet", mock.Anything, "acct1").Return(persisted, nil)
	mockStore.On("GetProject", mock.Anything, user.Id, "proj1").Return(models.Project{Id: "proj1", OwnerId: user.Id}, nil)
	mockCache.On("Publish", mock.Anything, "account:acct1", mock.Anything).Return(nil)

	boardSet, err := svc.DuplicateBoard(ctx, user, "acct1", "board1")
	assert.NoError(t, err)
	assert.Len(t, boardSet.Boards, 3)

	// The copy is appended after every existing board
	assert.Equal(t, "board1", boardSet.Boards[0].Id)
	assert.Equal(t, "board2", boardSet.Boards[1].Id)

	copied := boardSet.Boards[2]
	assert.NotEqual(t, "board1", copied.Id)
	assert.NotEqual(t, "u1", copied.Images[0].Id) // fresh id for the upload
	assert.Equal(t, "f1", copied.Images[1].Id)    // feed image keeps its id

	// Board-local: the project pool is untouched
	mockStore.AssertNotCalled(t, "PutProject", mock.Anything, mock.Anything)
	drainSnapshot(t, flusher)
}

func TestDeleteBoard_LastBoardRejected(t *testing.T) {
	svc, mockStore, mockCache, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{feedImage("f1")})

	_, err := svc.DeleteBoard(ctx, user, "acct1", "board1")
	assert.ErrorIs(t, err, service.ErrLastBoard)
}

func TestDeleteBoard_RemovesBoard(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	persisted := models.BoardSet{
		AccountId: "acct1",
		ProjectId: "proj1",
		Boards: []models.LayoutBoard{
			{Id: "board1", Images: []models.ImageRecord{}},
			{Id: "board2", Images: []models.ImageRecord{}},
		},
	}
	mockStore.On("GetBoardSet", mock.Anything, "acct1").Return(persisted, nil)
	mockStore.On("GetProject", mock.Anything, user.Id, "proj1").Return(models.Project{Id: "proj1", OwnerId: user.Id}, nil)
	mockCache.On("Publish", mock.Anything, "account:acct1", mock.Anything).Return(nil)

	boardSet, err := svc.DeleteBoard(ctx, user, "acct1", "board2")
	assert.NoError(t, err)
	assert.Len(t, boardSet.Boards, 1)
	assert.Equal(t, "board1", boardSet.Boards[0].Id)

	drainSnapshot(t, flusher)
}

// Concurrent mutations must all apply; the session queue serializes them.
func TestConcurrentMutations_NoneLost(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx := context.Background()
	user := testUser()

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{feedImage("f1")})
	mockStore.On("PutProject", mock.Anything, mock.Anything).Return(nil)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		img := uploadedImage(string(rune('a' + i)))
		go func(img models.ImageRecord) {
			defer wg.Done()
			_, _, err := svc.AddImagesToBoard(ctx, user, "acct1", "board1", []models.ImageRecord{img})
			assert.NoError(t, err)
		}(img)
	}
	wg.Wait()

	boardSet, err := svc.OpenEditor(ctx, user, "acct1", "proj1")
	assert.NoError(t, err)
	assert.Len(t, boardSet.Boards[0].Images, writers+1)

	// Drain the per-mutation snapshots
	for i := 0; i < writers; i++ {
		drainSnapshot(t, flusher)
	}
}

// Closing the editor must leave the last snapshot durable: close waits
// for the session goroutine to drain, then the flush barrier runs.
func TestCloseEditor_SnapshotDurableOnReturn(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	user := testUser()

	go flusher.Run(ctx)

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{feedImage("f1")})
	mockStore.On("PutProject", mock.Anything, mock.Anything).Return(nil)

	written := wrapMockWithSignal(mockStore.On("WriteBoardSets", mock.Anything, mock.MatchedBy(func(sets []models.BoardSet) bool {
		return len(sets) == 1 && len(sets[0].Boards[0].Images) == 2
	})).Return([]models.BoardSet{}, nil))

	_, _, err := svc.AddImagesToBoard(ctx, user, "acct1", "board1", []models.ImageRecord{uploadedImage("u1")})
	assert.NoError(t, err)

	svc.CloseEditor(user)

	// No waiting here: the write must already have happened
	select {
	case <-written:
	default:
		assert.Fail(t, "expected the snapshot to be durable when CloseEditor returns")
	}
}

// Mutations racing an account switch must either apply or fail with a
// closed-session error; none may hang or vanish silently.
func TestAccountSwitch_DoesNotStrandMutations(t *testing.T) {
	svc, mockStore, mockCache, _, flusher := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	user := testUser()

	go flusher.Run(ctx)

	setupReadySession(mockStore, mockCache, user, []models.ImageRecord{feedImage("f1")})
	mockStore.On("PutProject", mock.Anything, mock.Anything).Return(nil)
	mockStore.On("WriteBoardSets", mock.Anything, mock.Anything).Return([]models.BoardSet{}, nil)

	otherAccount := models.BoardSet{
		AccountId: "acct2",
		ProjectId: "proj1",
		Boards:    []models.LayoutBoard{{Id: "board1", Images: []models.ImageRecord{}}},
	}
	mockStore.On("GetBoardSet", mock.Anything, "acct2").Return(otherAccount, nil)
	mockCache.On("Publish", mock.Anything, "account:acct2", mock.Anything).Return(nil)

	mutationsDone := make(chan struct{})
	go func() {
		defer close(mutationsDone)
		for i := 0; i < 25; i++ {
			_, _, err := svc.AddImagesToBoard(ctx, user, "acct1", "board1", []models.ImageRecord{
				uploadedImage(fmt.Sprintf("u%d", i)),
			})
			if err != nil {
				assert.EqualError(t, err, "editor session closed")
			}
		}
	}()

	// Switch back and forth while mutations are in flight
	for i := 0; i < 10; i++ {
		_, err := svc.OpenEditor(ctx, user, "acct2", "proj1")
		assert.NoError(t, err)
		_, err = svc.OpenEditor(ctx, user, "acct1", "proj1")
		assert.NoError(t, err)
	}

	select {
	case <-mutationsDone:
	case <-time.After(5 * time.Second):
		assert.Fail(t, "mutation calls stalled during account switches")
	}
}
