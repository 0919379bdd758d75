package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"gococo/config"
	"gococo/types"
)

var pool *redis.Pool

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

func Init() {
	InitAddress(fmt.Sprintf("%s:%d", config.Config.Server.RedisHost, config.Config.Server.RedisPort))
}

func InitAddress(redisAddr string) {
	pool = &redis.Pool{
		MaxIdle: 5,
		Dial:    func() (redis.Conn, error) { return redis.Dial("tcp", redisAddr, timeoutDialOptions()...) },
	}
}

// Ping checks the server is reachable
func Ping() error {
	conn := pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	return err
}

func opKey(status, id string) string {
	return fmt.Sprintf("bridgeop:%s:%s", status, id)
}

func statusSet(status string) (string, error) {
	set, ok := config.RedisStatusSets[status]
	if !ok {
		return "", fmt.Errorf("no redis set for bridge operation status %q", status)
	}
	return set, nil
}

// note that multiple sets should not contain one operation
func UpsertBridgeOperation(op *types.BridgeOperation) error {
	if op == nil {
		return errors.New("null object to store")
	}

	if op.Status == "" {
		return errors.New("bridge operation cannot have empty status")
	}
	set, err := statusSet(op.Status)
	if err != nil {
		return err
	}

	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	recordKey := opKey(op.Status, op.ID)

	opJSON, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("cannot marshal bridge operation to JSON: %s", err.Error())
	}

	conn := pool.Get()
	defer conn.Close()

	_, err = conn.Do("SET", recordKey, opJSON)
	if err != nil {
		log.Printf("error Redis SET: %s", err.Error())
		return err
	}

	// also add the key to the corresponding SET
	_, err = conn.Do("SADD", set, recordKey)
	if err != nil {
		log.Printf("error Redis SADD: %s", err.Error())
		return err
	}

	return nil
}

func ChangeBridgeOperationStatus(op *types.BridgeOperation, prevStatus string) error {
	if op == nil {
		return errors.New("null object to store")
	}
	if op.ID == "" {
		return errors.New("cannot move a bridge operation without id")
	}
	prevSet, err := statusSet(prevStatus)
	if err != nil {
		return err
	}
	if prevStatus == op.Status {
		return UpsertBridgeOperation(op)
	}

	conn := pool.Get()
	defer conn.Close()

	prevRecordKey := opKey(prevStatus, op.ID)

	_, err = conn.Do("SREM", prevSet, prevRecordKey)
	if err != nil {
		log.Printf("error Redis SREM: %s", err.Error())
		return err
	}

	_, err = conn.Do("DEL", prevRecordKey)
	if err != nil {
		log.Printf("error Redis DEL: %s", err.Error())
		return err
	}

	return UpsertBridgeOperation(op)
}

// Journal stores bridge transitions, one record per operation under its current phase
type Journal struct{}

func (Journal) Record(op *types.BridgeOperation, prev string) error {
	if prev == "" {
		return UpsertBridgeOperation(op)
	}
	return ChangeBridgeOperationStatus(op, prev)
}

// GetBridgeOperation looks the id up under every phase; nil when unknown
func GetBridgeOperation(id string) (*types.BridgeOperation, error) {
	if id == "" {
		return nil, errors.New("empty bridge operation id")
	}

	conn := pool.Get()
	defer conn.Close()

	for status := range config.RedisStatusSets {
		raw, err := redis.Bytes(conn.Do("GET", opKey(status, id)))
		if errors.Is(err, redis.ErrNil) {
			continue
		}
		if err != nil {
			log.Printf("error Redis GET: %s", err.Error())
			return nil, err
		}

		var op types.BridgeOperation
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return &op, nil
	}
	return nil, nil
}

func FindAllBridgeOperationsByStatus(status string) ([]*types.BridgeOperation, error) {
	set, err := statusSet(status)
	if err != nil {
		return nil, err
	}

	conn := pool.Get()
	defer conn.Close()

	ops := make([]*types.BridgeOperation, 0)

	// scan every operation present in Redis
	var cursor int64

	for {
		values, err := redis.Values(conn.Do("SSCAN", set, cursor))
		if err != nil {
			return nil, err
		}

		var opKeys []string
		_, err = redis.Scan(values, &cursor, &opKeys)
		if err != nil {
			return nil, err
		}

		for _, key := range opKeys {
			raw, err := redis.Bytes(conn.Do("GET", key))
			if errors.Is(err, redis.ErrNil) {
				// moved to another phase between SSCAN and GET
				continue
			}
			if err != nil {
				log.Printf("error Redis GET: %s", err.Error())
				return nil, err
			}

			var op types.BridgeOperation
			if err := json.Unmarshal(raw, &op); err != nil {
				log.WithField("key", key).Printf("Skipping unreadable bridge operation: %s", err.Error())
				continue
			}
			if op.Status == status {
				ops = append(ops, &op)
			}
		}

		if cursor == 0 {
			break
		}
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].TsUpdated > ops[j].TsUpdated })
	return ops, nil
}

func addrBookSet(owner string) string {
	return fmt.Sprintf("addrbook:%s", strings.ToLower(owner))
}

func addrBookKey(owner, id string) string {
	return fmt.Sprintf("addrbook:%s:%s", strings.ToLower(owner), id)
}

func validAddress(addr string) bool {
	return common.IsHexAddress(addr) && ethav.Validate(common.HexToAddress(addr).Hex()) == nil
}

// UpsertAddressBookRecord stores a named recipient of the owner account
func UpsertAddressBookRecord(rec *types.AddressBookRecord) error {
	if rec == nil {
		return errors.New("null object to store")
	}
	if !validAddress(rec.Owner) {
		return fmt.Errorf("%w: invalid address book owner %q", types.ErrConfiguration, rec.Owner)
	}
	if !validAddress(rec.Address) {
		return fmt.Errorf("%w: invalid address %q", types.ErrConfiguration, rec.Address)
	}
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return fmt.Errorf("%w: address book record needs a name", types.ErrConfiguration)
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.TsCreated == 0 {
		rec.TsCreated = time.Now().Unix()
	}
	rec.Address = common.HexToAddress(rec.Address).Hex()

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal address book record to JSON: %s", err.Error())
	}

	conn := pool.Get()
	defer conn.Close()

	recordKey := addrBookKey(rec.Owner, rec.ID)
	_, err = conn.Do("SET", recordKey, recJSON)
	if err != nil {
		log.Printf("error Redis SET: %s", err.Error())
		return err
	}

	_, err = conn.Do("SADD", addrBookSet(rec.Owner), recordKey)
	if err != nil {
		log.Printf("error Redis SADD: %s", err.Error())
		return err
	}

	return nil
}

// ListAddressBook returns the owner's records, oldest first
func ListAddressBook(owner string) ([]*types.AddressBookRecord, error) {
	conn := pool.Get()
	defer conn.Close()

	keys, err := redis.Strings(conn.Do("SMEMBERS", addrBookSet(owner)))
	if err != nil {
		log.Printf("error Redis SMEMBERS: %s", err.Error())
		return nil, err
	}

	records := make([]*types.AddressBookRecord, 0, len(keys))
	for _, key := range keys {
		raw, err := redis.Bytes(conn.Do("GET", key))
		if errors.Is(err, redis.ErrNil) {
			continue
		}
		if err != nil {
			log.Printf("error Redis GET: %s", err.Error())
			return nil, err
		}

		var rec types.AddressBookRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].TsCreated != records[j].TsCreated {
			return records[i].TsCreated < records[j].TsCreated
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// Store exposes the journal and the address book to the API
type Store struct {
	Journal
}

func (Store) GetBridgeOperation(id string) (*types.BridgeOperation, error) {
	return GetBridgeOperation(id)
}

func (Store) BridgeOperationsByStatus(status string) ([]*types.BridgeOperation, error) {
	return FindAllBridgeOperationsByStatus(status)
}

func (Store) UpsertAddressBookRecord(rec *types.AddressBookRecord) error {
	return UpsertAddressBookRecord(rec)
}

func (Store) ListAddressBook(owner string) ([]*types.AddressBookRecord, error) {
	return ListAddressBook(owner)
}
