// Package cache holds the redis-backed password-reset token store. Reset
// tokens are opaque to clients: a 16-byte record ID concatenated with a
// 32-byte secret, base64url encoded. Only the sha256 of the secret is kept
// server-side, and a token is consumable exactly once.
package cache

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resetKeyPrefix     = "pwr"
	resetRecordVersion = 1
	resetIDSize        = 16
	resetSecretSize    = 32
	resetTokenRawSize  = resetIDSize + resetSecretSize
)

var (
	// ErrResetNotFound covers missing, expired, and already-consumed records.
	ErrResetNotFound = errors.New("reset record not found")
	// ErrResetSecretMismatch reports a token whose secret does not match.
	ErrResetSecretMismatch = errors.New("reset secret mismatch")
	// ErrResetAttemptsExceeded reports too many bad guesses for one record.
	ErrResetAttemptsExceeded = errors.New("reset attempts exceeded")
	// ErrResetBackend wraps redis transport failures.
	ErrResetBackend = errors.New("reset store backend unavailable")
)

// ResetRecord is the server-side state for one issued reset token.
type ResetRecord struct {
	UserID     string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// ResetStore persists reset records in redis with a TTL matching the
// record's expiry.
type ResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewResetStore creates a ResetStore on the given redis client.
func NewResetStore(redisClient redis.UniversalClient) *ResetStore {
	return &ResetStore{redis: redisClient, prefix: resetKeyPrefix}
}

// NewResetToken mints a fresh (recordID, token) pair. The token embeds the
// record ID and the plaintext secret; the returned hash is what the caller
// should persist via Save.
func NewResetToken() (recordID, token string, secretHash [32]byte, err error) {
	var raw [resetTokenRawSize]byte
	if _, err = io.ReadFull(rand.Reader, raw[:]); err != nil {
		return "", "", secretHash, err
	}
	recordID = base64.RawURLEncoding.EncodeToString(raw[:resetIDSize])
	token = base64.RawURLEncoding.EncodeToString(raw[:])
	secretHash = sha256.Sum256(raw[resetIDSize:])
	return recordID, token, secretHash, nil
}

// DecodeResetToken splits a client-presented token back into its record ID
// and the hash of the embedded secret.
func DecodeResetToken(token string) (recordID string, secretHash [32]byte, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secretHash, err
	}
	if len(raw) != resetTokenRawSize {
		return "", secretHash, errors.New("invalid reset token size")
	}
	recordID = base64.RawURLEncoding.EncodeToString(raw[:resetIDSize])
	secretHash = sha256.Sum256(raw[resetIDSize:])
	return recordID, secretHash, nil
}

func (s *ResetStore) key(recordID string) string {
	return s.prefix + ":" + recordID
}

// Save stores the record under recordID for ttl.
func (s *ResetStore) Save(ctx context.Context, recordID string, record *ResetRecord, ttl time.Duration) error {
	encoded, err := encodeResetRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(recordID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetBackend, err)
	}
	return nil
}

// Consume validates providedHash against the stored record under a redis
// WATCH transaction. On match the record is deleted so the token cannot be
// replayed; on mismatch the attempt counter is advanced and the record is
// destroyed once maxAttempts is reached.
func (s *ResetStore) Consume(ctx context.Context, recordID string, providedHash [32]byte, maxAttempts int) (*ResetRecord, error) {
	const maxRetries = 4
	key := s.key(recordID)

	for i := 0; i < maxRetries; i++ {
		var matched *ResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeResetRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return ErrResetNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					}); err != nil {
						return err
					}
					return ErrResetAttemptsExceeded
				}
				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					return ErrResetNotFound
				}
				updated, err := encodeResetRecord(record)
				if err != nil {
					return err
				}
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				}); err != nil {
					return err
				}
				return ErrResetSecretMismatch
			}

			// Single use: delete atomically with the successful match.
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			}); err != nil {
				return err
			}
			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrResetNotFound
			}
			if errors.Is(err, ErrResetNotFound) ||
				errors.Is(err, ErrResetSecretMismatch) ||
				errors.Is(err, ErrResetAttemptsExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrResetBackend, err)
		}
		return matched, nil
	}

	return nil, ErrResetNotFound
}

func encodeResetRecord(record *ResetRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(resetRecordVersion)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.SecretHash[:])
	if len(record.UserID) > 65535 {
		return nil, errors.New("reset record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	return buf.Bytes(), nil
}

func decodeResetRecord(data []byte) (*ResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersion {
		return nil, errors.New("invalid reset record version")
	}

	record := &ResetRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.UserID = string(id)

	return record, nil
}
