package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/pregram/pregram/models"
	"github.com/pregram/pregram/store"
)

const placeholderFeedSize = 9

type sessionState int

const (
	stateIdle sessionState = iota
	stateLoading
	stateReady
)

// EditorSession serializes board mutations for one account. Everything
// goes through a single goroutine draining an ordered request queue, so
// there is exactly one mutation in flight and submission order is
// preserved.
type EditorSession struct {
	service   *Service
	user      models.User
	accountId string

	state    sessionState
	boardSet models.BoardSet

	requests chan sessionRequest
	quit     chan struct{}
	finished chan struct{}

	closeMu sync.Mutex
	closed  bool
}

type sessionRequest struct {
	fn   func() error
	done chan error
}

func (s *Service) sessionFor(user models.User, accountId string) *EditorSession {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if existing, ok := s.sessions[user.Id]; ok {
		if existing.accountId == accountId {
			return existing
		}
		// Account switch: the outgoing snapshot must be durable before
		// the incoming account loads
		existing.close()
		s.LayoutFlusher.Flush()
	}

	session := &EditorSession{
		service:   s,
		user:      user,
		accountId: accountId,
		requests:  make(chan sessionRequest, 64),
		quit:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	s.sessions[user.Id] = session
	go session.run()

	return session
}

func (s *Service) dropSessionForAccount(userId string, accountId string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if session, ok := s.sessions[userId]; ok && session.accountId == accountId {
		session.close()
		delete(s.sessions, userId)
	}
}

// CloseEditor ends the user's session and flushes pending writes, the
// server-side equivalent of the write-on-unmount path.
func (s *Service) CloseEditor(user models.User) {
	s.sessionsMu.Lock()
	session, ok := s.sessions[user.Id]
	if ok {
		delete(s.sessions, user.Id)
	}
	s.sessionsMu.Unlock()

	if ok {
		session.close()
		s.LayoutFlusher.Flush()
	}
}

func (session *EditorSession) run() {
	defer close(session.finished)
	for {
		select {
		case req := <-session.requests:
			req.done <- req.fn()
		case <-session.quit:
			// Drain queued mutations; none may be lost
			for {
				select {
				case req := <-session.requests:
					req.done <- req.fn()
				default:
					return
				}
			}
		}
	}
}

// exec submits under the close lock: a request either lands in the
// queue before close and is guaranteed to run, or fails right away.
func (session *EditorSession) exec(fn func() error) error {
	req := sessionRequest{fn: fn, done: make(chan error, 1)}

	session.closeMu.Lock()
	if session.closed {
		session.closeMu.Unlock()
		return errors.New("editor session closed")
	}
	session.requests <- req
	session.closeMu.Unlock()

	return <-req.done
}

// close stops the session and waits for its goroutine to finish the
// drain, so every accepted mutation has settled when close returns.
func (session *EditorSession) close() {
	session.closeMu.Lock()
	if !session.closed {
		session.closed = true
		close(session.quit)
	}
	session.closeMu.Unlock()

	<-session.finished
}

type BoardChangedMessage struct {
	Type string           `json:"type"`
	Data BoardChangedData `json:"data"`
}

type BoardChangedData struct {
	AccountId string               `json:"accountId"`
	ProjectId string               `json:"projectId"`
	Boards    []models.LayoutBoard `json:"boards"`
}

// OpenEditor resolves the account's board set: adopt the persisted
// snapshot if one exists, otherwise synthesize the initial layout from
// the project.
func (s *Service) OpenEditor(ctx context.Context, user models.User, accountId string, projectId string) (models.BoardSet, error) {
	session := s.sessionFor(user, accountId)

	var snapshot models.BoardSet
	err := session.exec(func() error {
		if err := session.load(ctx, projectId); err != nil {
			return err
		}
		snapshot = snapshotCopy(session.boardSet)
		return nil
	})

	return snapshot, err
}

func (session *EditorSession) load(ctx context.Context, projectId string) error {
	if session.state == stateReady {
		return nil
	}
	session.state = stateLoading

	persisted, err := session.service.Store.GetBoardSet(ctx, session.accountId)
	if err != nil && !errors.Is(err, store.ErrItemNotFound) {
		session.state = stateIdle
		return err
	}

	if err == nil {
		// The persisted snapshot's project pointer wins over the one the
		// client asked for
		projectId = persisted.ProjectId
		if _, perr := session.service.Store.GetProject(ctx, session.user.Id, projectId); errors.Is(perr, store.ErrItemNotFound) {
			// The project behind the snapshot is gone; re-create it so the
			// pointer resolves again. One hop, no further recursion.
			if _, rerr := session.service.recoverProject(ctx, session.user, projectId, boardImages(persisted.Boards)); rerr != nil {
				session.state = stateIdle
				return rerr
			}
		} else if perr != nil {
			session.state = stateIdle
			return perr
		}

		session.boardSet = persisted
		session.state = stateReady
		return nil
	}

	if projectId == "" {
		session.state = stateIdle
		return errors.New("editor not opened for a project")
	}

	// No snapshot yet: synthesize the initial layout
	project, err := session.service.Store.GetProject(ctx, session.user.Id, projectId)
	if errors.Is(err, store.ErrItemNotFound) {
		project, err = session.service.recoverProject(ctx, session.user, projectId, nil)
	}
	if err != nil {
		session.state = stateIdle
		return err
	}

	uploaded, existing := partitionImages(project.Images)

	boardId, err := uuid.NewV4()
	if err != nil {
		session.state = stateIdle
		return err
	}

	if len(existing) == 0 {
		// No feed content yet: seed the placeholder feed and mirror it
		// into the project, matching what a connected account shows. A
		// brand-new empty project starts as a board of placeholders too.
		existing = session.service.Feed.PlaceholderFeed(placeholderFeedSize)
		project.Images = append(project.Images, existing...)
		project.UpdatedAt = time.Now().UnixMilli()
		if perr := session.service.Store.PutProject(ctx, project); perr != nil {
			log.Printf("Failed to mirror placeholder feed into project %s: %v", project.Id, perr)
		}
	}
	boards := []models.LayoutBoard{{
		Id:     boardId.String(),
		Images: append(append([]models.ImageRecord{}, uploaded...), existing...),
	}}

	session.boardSet = models.BoardSet{
		AccountId: session.accountId,
		ProjectId: project.Id,
		Boards:    boards,
	}
	session.state = stateReady
	session.settle()

	return nil
}

// settle re-applies the uploaded-first ordering, hands the snapshot to
// the flusher and broadcasts the change. Every mutation ends here.
func (session *EditorSession) settle() {
	for i := range session.boardSet.Boards {
		session.boardSet.Boards[i].Images = normalizeOrder(session.boardSet.Boards[i].Images)
	}

	snapshot := snapshotCopy(session.boardSet)
	session.service.LayoutFlusher.SnapshotCh <- snapshot

	msg := BoardChangedMessage{
		Type: "boards_changed",
		Data: BoardChangedData{
			AccountId: snapshot.AccountId,
			ProjectId: snapshot.ProjectId,
			Boards:    snapshot.Boards,
		},
	}
	if msgBytes, err := json.Marshal(msg); err == nil {
		session.service.Cache.Publish(context.Background(), "account:"+snapshot.AccountId, msgBytes)
	}
}

func (session *EditorSession) boardIndex(boardId string) int {
	for i, board := range session.boardSet.Boards {
		if board.Id == boardId {
			return i
		}
	}
	return -1
}

func (s *Service) AddImagesToBoard(ctx context.Context, user models.User, accountId string, boardId string, images []models.ImageRecord) (models.BoardSet, []string, error) {
	valid, rejected := FilterValidImages(images)
	session := s.sessionFor(user, accountId)

	var snapshot models.BoardSet
	err := session.exec(func() error {
		if err := session.load(ctx, session.boardSet.ProjectId); err != nil {
			return err
		}

		idx := session.boardIndex(boardId)
		if idx == -1 {
			// Unknown board: self-heal by appending a new board carrying
			// the images instead of dropping them
			newId, err := uuid.NewV4()
			if err != nil {
				return err
			}
			session.boardSet.Boards = append(session.boardSet.Boards, models.LayoutBoard{
				Id:     newId.String(),
				Images: append([]models.ImageRecord{}, valid...),
			})
		} else {
			board := &session.boardSet.Boards[idx]
			board.Images = append(append([]models.ImageRecord{}, valid...), board.Images...)
		}

		// Mirror into the project pool
		if len(valid) > 0 {
			if _, _, err := s.AddImages(ctx, user, session.boardSet.ProjectId, valid); err != nil {
				return err
			}
		}

		session.settle()
		snapshot = snapshotCopy(session.boardSet)
		return nil
	})

	return snapshot, rejected, err
}

// ReorderBoard replaces the board's image list verbatim, then the
// uploaded-first ordering is re-applied like after any other mutation.
func (s *Service) ReorderBoard(ctx context.Context, user models.User, accountId string, boardId string, images []models.ImageRecord) (models.BoardSet, error) {
	session := s.sessionFor(user, accountId)

	var snapshot models.BoardSet
	err := session.exec(func() error {
		if err := session.load(ctx, session.boardSet.ProjectId); err != nil {
			return err
		}

		idx := session.boardIndex(boardId)
		if idx == -1 {
			return store.ErrItemNotFound
		}

		session.boardSet.Boards[idx].Images = images
		session.settle()

		// Mirror the settled order into the project pool
		if _, err := s.ReorderImages(ctx, user, session.boardSet.ProjectId, session.boardSet.Boards[idx].Images); err != nil {
			return err
		}

		snapshot = snapshotCopy(session.boardSet)
		return nil
	})

	return snapshot, err
}

// RemoveImageFromBoard only removes user uploads. Feed images are part
// of the published grid and stay. Removing an absent image is a no-op.
func (s *Service) RemoveImageFromBoard(ctx context.Context, user models.User, accountId string, boardId string, imageId string) (models.BoardSet, error) {
	session := s.sessionFor(user, accountId)

	var snapshot models.BoardSet
	err := session.exec(func() error {
		if err := session.load(ctx, session.boardSet.ProjectId); err != nil {
			return err
		}

		idx := session.boardIndex(boardId)
		if idx == -1 {
			return store.ErrItemNotFound
		}

		board := &session.boardSet.Boards[idx]
		found := -1
		for i, img := range board.Images {
			if img.Id == imageId {
				found = i
				break
			}
		}

		if found == -1 {
			snapshot = snapshotCopy(session.boardSet)
			return nil
		}
		if !board.Images[found].IsUserUploaded {
			return ErrNotUploaded
		}

		board.Images = append(board.Images[:found], board.Images[found+1:]...)
		session.settle()

		if _, err := s.RemoveImage(ctx, user, session.boardSet.ProjectId, imageId); err != nil {
			return err
		}

		snapshot = snapshotCopy(session.boardSet)
		return nil
	})

	return snapshot, err
}

// DuplicateBoard is board-local: the project pool is untouched. Uploaded
// images get fresh ids in the copy, feed images keep theirs.
func (s *Service) DuplicateBoard(ctx context.Context, user models.User, accountId string, boardId string) (models.BoardSet, error) {
	session := s.sessionFor(user, accountId)

	var snapshot models.BoardSet
	err := session.exec(func() error {
		if err := session.load(ctx, session.boardSet.ProjectId); err != nil {
			return err
		}

		idx := session.boardIndex(boardId)
		if idx == -1 {
			return store.ErrItemNotFound
		}

		source := session.boardSet.Boards[idx]

		copyId, err := uuid.NewV4()
		if err != nil {
			return err
		}

		copied := models.LayoutBoard{
			Id:     copyId.String(),
			Images: make([]models.ImageRecord, len(source.Images)),
		}
		for i, img := range source.Images {
			copied.Images[i] = img
			if img.IsUserUploaded {
				freshId, err := uuid.NewV7()
				if err != nil {
					return err
				}
				copied.Images[i].Id = freshId.String()
			}
		}

		// The copy goes to the end, after every existing board
		session.boardSet.Boards = append(session.boardSet.Boards, copied)

		session.settle()
		snapshot = snapshotCopy(session.boardSet)
		return nil
	})

	return snapshot, err
}

func (s *Service) DeleteBoard(ctx context.Context, user models.User, accountId string, boardId string) (models.BoardSet, error) {
	session := s.sessionFor(user, accountId)

	var snapshot models.BoardSet
	err := session.exec(func() error {
		if err := session.load(ctx, session.boardSet.ProjectId); err != nil {
			return err
		}

		if len(session.boardSet.Boards) <= 1 {
			return ErrLastBoard
		}

		idx := session.boardIndex(boardId)
		if idx == -1 {
			return store.ErrItemNotFound
		}

		session.boardSet.Boards = append(session.boardSet.Boards[:idx], session.boardSet.Boards[idx+1:]...)
		session.settle()
		snapshot = snapshotCopy(session.boardSet)
		return nil
	})

	return snapshot, err
}

// normalizeOrder stable-partitions uploads in front of feed images,
// preserving relative order inside each group.
func normalizeOrder(images []models.ImageRecord) []models.ImageRecord {
	uploaded, existing := partitionImages(images)
	return append(uploaded, existing...)
}

func partitionImages(images []models.ImageRecord) ([]models.ImageRecord, []models.ImageRecord) {
	uploaded := make([]models.ImageRecord, 0, len(images))
	existing := make([]models.ImageRecord, 0, len(images))
	for _, img := range images {
		if img.IsUserUploaded {
			uploaded = append(uploaded, img)
		} else {
			existing = append(existing, img)
		}
	}
	return uploaded, existing
}

func boardImages(boards []models.LayoutBoard) []models.ImageRecord {
	if len(boards) == 0 {
		return nil
	}
	return append([]models.ImageRecord{}, boards[0].Images...)
}

// snapshotCopy deep-copies the board slices so the flusher and callers
// never alias the session's live state.
func snapshotCopy(set models.BoardSet) models.BoardSet {
	boards := make([]models.LayoutBoard, len(set.Boards))
	for i, board := range set.Boards {
		boards[i] = models.LayoutBoard{
			Id:     board.Id,
			Images: append([]models.ImageRecord{}, board.Images...),
		}
	}
	return models.BoardSet{
		AccountId: set.AccountId,
		ProjectId: set.ProjectId,
		Boards:    boards,
	}
}
