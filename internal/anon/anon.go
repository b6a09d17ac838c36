// Package anon maps (institution, student) pairs to stable anonymous ids.
// The mapping is a keyed hash, so the raw student id is never stored and the
// same pair always yields the same id across restarts.
package anon

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/cache"
	"mindpalace/backend/pkg/logger"
)

// SaltKey is the secret name holding the hashing key.
const SaltKey = "ANON_ID_SALT"

var (
	// ErrMissingStudent is returned when no student id is given.
	ErrMissingStudent = errors.New("anon: student id is required")
	// ErrMissingSalt is returned when the hashing key is empty.
	ErrMissingSalt = errors.New("anon: salt is required")
	// ErrExhausted is returned when every derived candidate id is taken.
	ErrExhausted = errors.New("anon: no free anonymous id")
)

// maxAttempts bounds how many candidate ids are derived for one student.
const maxAttempts = 16

// IdentityStore persists mappings. SaveAnonIdentity returns
// store.ErrDuplicate when the anonymous id belongs to another key.
type IdentityStore interface {
	GetAnonIdentity(ctx context.Context, keyHash string) (*models.AnonIdentity, error)
	SaveAnonIdentity(ctx context.Context, identity *models.AnonIdentity) error
}

// Service assigns anonymous ids.
type Service struct {
	store IdentityStore
	cache *cache.Cache[string]
	key   []byte
	log   *logger.Logger

	digest func(institutionCode, studentID string) ([]byte, error)
}

// NewService keys the hash with salt. Salts longer than a BLAKE2b key are
// compressed first. c may be nil.
func NewService(st IdentityStore, salt string, c *cache.Cache[string], log *logger.Logger) (*Service, error) {
	if salt == "" {
		return nil, ErrMissingSalt
	}
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	if c == nil {
		c = cache.New[string](cache.Options{MaxItems: 10000})
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	s := &Service{store: st, cache: c, key: key, log: log}
	s.digest = s.keyedDigest
	return s, nil
}

// Assign returns the anonymous id for a student, creating and persisting it
// on first use.
func (s *Service) Assign(ctx context.Context, institutionCode, studentID string) (string, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return "", ErrMissingStudent
	}
	institutionCode = strings.TrimSpace(institutionCode)

	digest, err := s.digest(institutionCode, studentID)
	if err != nil {
		return "", err
	}
	keyHash := hex.EncodeToString(digest)

	if id, ok := s.cache.Get(keyHash); ok {
		return id, nil
	}

	if s.store != nil {
		existing, err := s.store.GetAnonIdentity(ctx, keyHash)
		switch {
		case err == nil:
			s.cache.Set(keyHash, existing.AnonymousID)
			return existing.AnonymousID, nil
		case !errors.Is(err, store.ErrNotFound):
			return "", err
		}
	}

	id, err := s.allocate(ctx, institutionCode, keyHash, digest)
	if err != nil {
		return "", err
	}
	s.cache.Set(keyHash, id)
	return id, nil
}

// allocate persists the first candidate id not held by another student.
// Candidates are derived from the digest alone, so a student walks the same
// sequence on every instance.
func (s *Service) allocate(ctx context.Context, institutionCode, keyHash string, digest []byte) (string, error) {
	candidate := digest
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			next, err := s.rehash(digest, attempt)
			if err != nil {
				return "", err
			}
			candidate = next
		}
		id := Format(institutionCode, candidate)
		if s.store == nil {
			return id, nil
		}

		identity := &models.AnonIdentity{KeyHash: keyHash, InstitutionCode: institutionCode, AnonymousID: id}
		err := s.store.SaveAnonIdentity(ctx, identity)
		switch {
		case err == nil:
			return identity.AnonymousID, nil
		case errors.Is(err, store.ErrDuplicate):
			s.log.Warn("anonymous id collision, deriving another", "institution_code", institutionCode, "attempt", attempt)
		default:
			// The id is derived, so it is still correct; only continuity
			// across a changed salt is lost.
			s.log.LogError(err, "persisting anonymous identity failed", "institution_code", institutionCode)
			return id, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, maxAttempts)
}

func (s *Service) rehash(digest []byte, attempt int) ([]byte, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return nil, fmt.Errorf("anon: init hash: %w", err)
	}
	h.Write(digest)
	h.Write([]byte{byte(attempt)})
	return h.Sum(nil), nil
}

func (s *Service) keyedDigest(institutionCode, studentID string) ([]byte, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return nil, fmt.Errorf("anon: init hash: %w", err)
	}
	h.Write([]byte(institutionCode))
	h.Write([]byte{0})
	h.Write([]byte(studentID))
	return h.Sum(nil), nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases code and collapses other characters into dashes.
func Slug(code string) string {
	slug := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(code), "-"), "-")
	if slug == "" {
		return "public"
	}
	return slug
}

// Format renders anon-{slug}-{token}-{check} from a digest. The token is six
// base-36 characters; the check is four hex characters over slug and token.
func Format(institutionCode string, digest []byte) string {
	const space = 36 * 36 * 36 * 36 * 36 * 36
	n := binary.BigEndian.Uint64(digest[:8]) % space
	token := strconv.FormatUint(n, 36)
	token = strings.Repeat("0", 6-len(token)) + token

	check := blake2b.Sum256([]byte(institutionCode + ":" + token))
	return fmt.Sprintf("anon-%s-%s-%s", Slug(institutionCode), token, hex.EncodeToString(check[:])[:4])
}
