// Package pathutil provides name, release reference and path validation.
package pathutil

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/muxos/muxos-helper/pkg/model"
)

var (
	nameRegex     = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	repoRegex     = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})/[A-Za-z0-9._-]{1,100}$`)
	versionTagRe  = regexp.MustCompile(`^v?[0-9]+(\.[0-9]+){1,3}(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
	commitRe      = regexp.MustCompile(`^[0-9a-f]{40}$`)
	updateIDRegex = regexp.MustCompile(`^[0-9]{8}-[0-9]{6}$`)
)

// ValidateName checks that a backup key or other single path component is safe.
func ValidateName(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}

	name = norm.NFC.String(name)

	if name == ".." || strings.Contains(name, "..") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain '..': %s", name)
	}

	if strings.ContainsAny(name, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain separators: %s", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("name must not contain control characters: %q", name)
		}
	}

	if !nameRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("name must match [a-zA-Z0-9._-]+: %s", name)
	}

	return nil
}

// ValidateRef accepts only immutable release references: a version tag
// such as v1.2.3 or a full 40-hex commit id. Branch names are refused.
func ValidateRef(ref string) error {
	if ref == "" {
		return errclass.ErrRefInvalid.WithMessage("ref required (use immutable tag like v1.0.0)")
	}
	if versionTagRe.MatchString(ref) || commitRe.MatchString(ref) {
		return nil
	}
	return errclass.ErrRefInvalid.WithMessagef("ref %q is not an immutable version tag", ref)
}

// ValidateRepo checks an owner/name repository slug.
func ValidateRepo(repo string) error {
	if !repoRegex.MatchString(repo) || strings.Contains(repo, "..") {
		return errclass.ErrNameInvalid.WithMessagef("invalid repository slug: %q", repo)
	}
	return nil
}

// ValidateUpdateID checks the shape of an update identifier.
func ValidateUpdateID(id string) error {
	if id == "" {
		return errclass.ErrInvalidRequest.WithMessage("update_id required")
	}
	if !updateIDRegex.MatchString(id) {
		return errclass.ErrInvalidRequest.WithMessagef("malformed update id: %q", id)
	}
	if _, err := model.UpdateID(id).Time(); err != nil {
		return errclass.ErrInvalidRequest.WithMessagef("malformed update id: %q", id)
	}
	return nil
}

// JoinUnder joins rel beneath root and refuses results that escape root.
// Leading separators in rel are stripped, so absolute paths are re-rooted.
func JoinUnder(root, rel string) (string, error) {
	root = filepath.Clean(root)
	joined := filepath.Join(root, strings.TrimLeft(rel, "/"))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", errclass.ErrPathEscape.WithMessagef("path escapes %s: %s", root, rel)
	}
	return joined, nil
}
