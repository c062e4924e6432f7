package share

import (
	"crypto/rand"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var ErrBadStoredName = errors.New("malformed stored name")
var ErrBadOriginalName = errors.New("invalid original filename")

const saltLength = 6

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewToken generates a batch token: the current time in milliseconds encoded
// base36, followed by random salt. Tokens contain only [a-z0-9], so the first
// dash in a stored name always terminates the token.
func NewToken() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	for i, b := range salt {
		salt[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + string(salt), nil
}

// StoredName joins a batch token and an original filename into the name a blob
// is stored under.
func StoredName(token, originalName string) string {
	return token + "-" + originalName
}

// ParseStoredName recovers the batch token and original filename from a stored
// name. Original filenames may themselves contain dashes; only the first dash
// separates the token.
func ParseStoredName(name string) (token, originalName string, err error) {
	idx := strings.Index(name, "-")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", ErrBadStoredName
	}
	token = name[:idx]
	if !validToken(token) {
		return "", "", ErrBadStoredName
	}
	return token, name[idx+1:], nil
}

func validToken(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// CleanOriginalName reduces a client-supplied filename to a bare name safe to
// embed in a stored name. Path components are stripped, not rejected, since
// some browsers send full paths.
func CleanOriginalName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrBadOriginalName
	}
	if strings.ContainsRune(name, 0) {
		return "", ErrBadOriginalName
	}
	return name, nil
}
