package layers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"os/user"
	"regexp"
	"strings"
)

const (
	lowerLetters    = "abcdefghijklmnopqrstuvwxyz"
	lowerAlphaNum   = lowerLetters + "0123456789"
	nameBudget      = 30
	minUniqIDLength = 16
)

var (
	repoTagPattern = regexp.MustCompile(`^([a-z0-9_.-]+/)?[a-z0-9_.-]+(:[a-z0-9_.-]+)?$`)
	unsafeUserChar = regexp.MustCompile(`[^a-z0-9_.-]`)
)

// ValidRepoTag reports whether s is [user/]repo[:tag] with lowercase
// alphanumerics, '_', '.' and '-' in each part.
func ValidRepoTag(s string) bool {
	return repoTagPattern.MatchString(s)
}

// NameTokens are the substitutions available to temporary repo tag templates.
type NameTokens struct {
	Username string
	// UniqID fills the 30 character budget left by Username, but has at
	// least 16 characters.
	UniqID   string
	UniqID16 string
	UniqID30 string
}

// NewNameTokens draws fresh random identifiers for the current user.
func NewNameTokens() (NameTokens, error) {
	tokens := NameTokens{Username: CurrentUsername()}

	length := nameBudget - 1 - len(tokens.Username)
	if length < minUniqIDLength {
		length = minUniqIDLength
	}

	var err error
	if tokens.UniqID, err = UniqID(length); err != nil {
		return NameTokens{}, err
	}
	if tokens.UniqID16, err = UniqID(16); err != nil {
		return NameTokens{}, err
	}
	if tokens.UniqID30, err = UniqID(30); err != nil {
		return NameTokens{}, err
	}
	return tokens, nil
}

// DefaultTempRepoTag renders temp_image/<username>:<uniq_id>.
func DefaultTempRepoTag(t NameTokens) (string, error) {
	return fmt.Sprintf("temp_image/%s:%s", t.Username, t.UniqID), nil
}

// UniqID returns a random identifier starting with a lowercase letter and
// continuing with lowercase letters and digits.
func UniqID(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("identifier length must be positive, got %d", length)
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		alphabet := lowerAlphaNum
		if i == 0 {
			alphabet = lowerLetters
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// CurrentUsername is the OS user name reduced to repo tag characters.
func CurrentUsername() string {
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	name = unsafeUserChar.ReplaceAllString(strings.ToLower(name), "_")
	if name == "" {
		return "user"
	}
	return name
}
