package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersionV1 = 1
)

var (
	ErrChallengeNotFound         = errors.New("challenge record not found")
	ErrChallengeCodeMismatch     = errors.New("challenge code mismatch")
	ErrChallengePurposeMismatch  = errors.New("challenge purpose mismatch")
	ErrChallengeAttemptsExceeded = errors.New("challenge attempts exceeded")
	ErrChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// consumeChallengeLua atomically performs GET→validate→DEL/SET on a
// challenge record.
// KEYS[1] = record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = expected purpose (byte)
// ARGV[3] = max attempts (int string)
// ARGV[4] = current unix timestamp (int string)
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "purpose_mismatch",
//	"attempts_exceeded", "code_mismatch"
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local expectedPurpose = tonumber(ARGV[2])
local maxAttempts = tonumber(ARGV[3])
local nowUnix = tonumber(ARGV[4])

-- Binary layout: version(1) purpose(1) attempts(2 big-endian)
-- issuedAt(8 big-endian) expiresAt(8 big-endian) idLen(2 big-endian) id(variable) codeHash(32)
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local purpose = string.byte(data, 2)

local a0 = string.byte(data, 3)
local a1 = string.byte(data, 4)
local attempts = a0 * 256 + a1

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 13, 20)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if purpose ~= expectedPurpose then
  return {err='purpose_mismatch'}
end

local idLen = string.byte(data, 21) * 256 + string.byte(data, 22)
local hashOffset = 23 + idLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newA0 = math.floor(attempts / 256)
  local newA1 = attempts % 256
  local newData = string.sub(data, 1, 2) .. string.char(newA0, newA1) .. string.sub(data, 5)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// ChallengeRecord is the stored form of one outstanding verification
// challenge. At most one record exists per identity key.
type ChallengeRecord struct {
	ChallengeID string
	CodeHash    [32]byte
	IssuedAt    int64
	ExpiresAt   int64
	Attempts    uint16
	Purpose     int
}

type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "vc"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(identityKey string) string {
	return s.prefix + ":" + identityKey
}

// Save writes the record under the identity key with the challenge TTL,
// overwriting (and thereby invalidating) any prior record for that key.
// Returns true when a prior record was superseded.
func (s *ChallengeStore) Save(
	ctx context.Context,
	identityKey string,
	record *ChallengeRecord,
	ttl time.Duration,
) (bool, error) {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return false, err
	}

	superseded, err := s.redis.Exists(ctx, s.key(identityKey)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}

	if err := s.redis.Set(ctx, s.key(identityKey), encoded, ttl).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}

	return superseded > 0, nil
}

// Get returns the outstanding record for an identity key, or
// ErrChallengeNotFound. Expired-but-unswept records are reported as not
// found; only Consume mutates state.
func (s *ChallengeStore) Get(ctx context.Context, identityKey string) (*ChallengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(identityKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}

	record, err := decodeChallengeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, ErrChallengeNotFound
	}
	return record, nil
}

// Delete removes the record for an identity key. Deleting a missing key is
// not an error.
func (s *ChallengeStore) Delete(ctx context.Context, identityKey string) error {
	if err := s.redis.Del(ctx, s.key(identityKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return nil
}

// Consume atomically checks the provided code hash against the stored
// record and deletes the record on match. Wrong codes increment the
// per-record attempt counter; reaching maxAttempts deletes the record.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	identityKey string,
	providedHash [32]byte,
	expectedPurpose int,
	maxAttempts int,
) (*ChallengeRecord, error) {
	key := s.key(identityKey)
	nowUnix := time.Now().Unix()

	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{key},
		string(providedHash[:]),
		expectedPurpose,
		maxAttempts,
		nowUnix,
	).Result()

	if err != nil {
		msg := err.Error()
		switch msg {
		case "not_found":
			return nil, ErrChallengeNotFound
		case "expired":
			return nil, ErrChallengeNotFound
		case "purpose_mismatch":
			return nil, ErrChallengePurposeMismatch
		case "attempts_exceeded":
			return nil, ErrChallengeAttemptsExceeded
		case "code_mismatch":
			return nil, ErrChallengeCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrChallengeRedisUnavailable)
	}

	record, decErr := decodeChallengeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, decErr)
	}

	// Final constant-time comparison in Go as defense-in-depth
	// (Lua already checked, but Lua string comparison is not constant-time)
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrChallengeCodeMismatch
	}

	return record, nil
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)
	buf.WriteByte(byte(record.Purpose))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.ChallengeID) > 65535 {
		return nil, errors.New("challenge record id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.ChallengeID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.ChallengeID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &ChallengeRecord{
		Purpose: int(purpose),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
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
	record.ChallengeID = string(id)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
