package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gofrs/uuid/v5"
	"github.com/pregram/pregram/models"
)

const decodeTimeout = 5 * time.Second

type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type UploadRejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// IngestUploads turns raw files into image records. A bad file rejects
// only itself: the valid records are returned alongside the per-file
// diagnostics.
func (s *Service) IngestUploads(ctx context.Context, files []UploadFile) ([]models.ImageRecord, []UploadRejection) {
	records := make([]models.ImageRecord, 0, len(files))
	var rejections []UploadRejection

	for _, file := range files {
		record, err := ingestFile(ctx, file)
		if err != nil {
			rejections = append(rejections, UploadRejection{Name: file.Name, Reason: err.Error()})
			continue
		}
		records = append(records, record)
	}

	return records, rejections
}

func ingestFile(ctx context.Context, file UploadFile) (models.ImageRecord, error) {
	if !strings.HasPrefix(file.ContentType, "image/") {
		return models.ImageRecord{}, fmt.Errorf("unsupported content type %q", file.ContentType)
	}
	if len(file.Data) == 0 {
		return models.ImageRecord{}, errors.New("empty file")
	}

	cfg, err := decodeDimensions(ctx, file.Data)
	if err != nil {
		return models.ImageRecord{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return models.ImageRecord{}, errors.New("could not determine image dimensions")
	}
	if cfg.Width > maxImageDimension || cfg.Height > maxImageDimension {
		return models.ImageRecord{}, fmt.Errorf("image exceeds %dpx limit", maxImageDimension)
	}

	imageId, err := uuid.NewV7()
	if err != nil {
		return models.ImageRecord{}, err
	}

	return models.ImageRecord{
		Id:             imageId.String(),
		PreviewURI:     "data:" + file.ContentType + ";base64," + base64.StdEncoding.EncodeToString(file.Data),
		Width:          cfg.Width,
		Height:         cfg.Height,
		IsUserUploaded: true,
		SourceRef:      file.Data,
	}, nil
}

// decodeDimensions probes only the image header. The decode runs in its
// own goroutine so a malformed file cannot stall the request past the
// timeout.
func decodeDimensions(ctx context.Context, data []byte) (image.Config, error) {
	type result struct {
		cfg image.Config
		err error
	}
	ch := make(chan result, 1)

	go func() {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		ch <- result{cfg: cfg, err: err}
	}()

	ctx, cancel := context.WithTimeout(ctx, decodeTimeout)
	defer cancel()

	select {
	case res := <-ch:
		if res.err != nil {
			return image.Config{}, errors.New("invalid image data")
		}
		return res.cfg, nil
	case <-ctx.Done():
		return image.Config{}, errors.New("image decode timed out")
	}
}
