package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pregram/pregram/models"
)

const (
	maxImageDimension    = 5000
	maxProjectNameLength = 120
	maxUsernameLength    = 30
)

// Instagram handle rules: lowercase letters, digits, dots, underscores
var usernameRegex = regexp.MustCompile(`^[a-z0-9._]+$`)

func ValidateImageRecord(img models.ImageRecord) error {
	if img.Id == "" {
		return errors.New("missing image id")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return errors.New("invalid image dimensions")
	}
	if img.Width > maxImageDimension || img.Height > maxImageDimension {
		return fmt.Errorf("image exceeds %dpx limit", maxImageDimension)
	}
	if img.PreviewURI == "" {
		return errors.New("missing preview")
	}
	if !strings.HasPrefix(img.PreviewURI, "data:image/") && !strings.HasPrefix(img.PreviewURI, "https://") {
		return errors.New("invalid preview uri")
	}
	return nil
}

// FilterValidImages drops invalid records instead of failing the whole
// batch. Each dropped record yields a diagnostic for the caller.
func FilterValidImages(images []models.ImageRecord) ([]models.ImageRecord, []string) {
	valid := make([]models.ImageRecord, 0, len(images))
	var rejected []string

	for _, img := range images {
		if err := ValidateImageRecord(img); err != nil {
			rejected = append(rejected, fmt.Sprintf("image %q rejected: %v", img.Id, err))
			continue
		}
		valid = append(valid, img)
	}

	return valid, rejected
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return errors.New("username must not be empty")
	}
	if len(username) > maxUsernameLength {
		return errors.New("username too long")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters")
	}
	if strings.HasPrefix(username, ".") || strings.HasSuffix(username, ".") {
		return errors.New("username must not start or end with a dot")
	}
	return nil
}

func ValidateProjectName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return errors.New("project name must not be empty")
	}
	if len(name) > maxProjectNameLength {
		return errors.New("project name too long")
	}
	return nil
}
