package workerport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
)

const (
	workerKeyPrefix   = "worker:"
	servableKeyPrefix = "servable:"
	defaultExpiration = 15 * time.Second
	scanCount         = 100
)

var _ secondary.WorkerRepository = &WorkerRepository{}

// WorkerRepository implements the WorkerRepository interface with Redis.
// Snapshots expire on their own when a worker stops heartbeating.
type WorkerRepository struct {
	redisClient redis.UniversalClient
	logger      primary.Logger
	expiration  time.Duration
}

// NewWorkerRepository creates a new Redis worker repository. Records live for
// expiration past their last write; a zero value picks a default.
func NewWorkerRepository(redisClient redis.UniversalClient, expiration time.Duration, logger primary.Logger) *WorkerRepository {
	if expiration <= 0 {
		expiration = defaultExpiration
	}
	return &WorkerRepository{
		redisClient: redisClient,
		logger:      logger,
		expiration:  expiration,
	}
}

func workerKey(address string) string {
	return workerKeyPrefix + address
}

func servableKey(name string) string {
	return servableKeyPrefix + name
}

// SaveWorker saves worker information to Redis and indexes it by servable
func (r *WorkerRepository) SaveWorker(ctx context.Context, worker *domain.WorkerRecord) error {
	workerJSON, err := json.Marshal(worker)
	if err != nil {
		r.logger.Error("Failed to marshal worker info", "error", err)
		return fmt.Errorf("failed to marshal worker info: %w", err)
	}

	previous, err := r.GetWorker(ctx, worker.Address)
	if err != nil {
		return err
	}

	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, workerKey(worker.Address), workerJSON, r.expiration)
		if previous != nil {
			for _, name := range servableNames(previous) {
				pipe.SRem(ctx, servableKey(name), worker.Address)
			}
		}
		for _, name := range servableNames(worker) {
			pipe.SAdd(ctx, servableKey(name), worker.Address)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save worker info", "address", worker.Address, "error", err)
		return fmt.Errorf("failed to save worker info: %w", err)
	}
	return nil
}

// GetWorker retrieves worker information from Redis by address
func (r *WorkerRepository) GetWorker(ctx context.Context, address string) (*domain.WorkerRecord, error) {
	workerJSON, err := r.redisClient.Get(ctx, workerKey(address)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.logger.Error("Failed to get worker info", "error", err)
		return nil, fmt.Errorf("failed to get worker info: %w", err)
	}

	var worker domain.WorkerRecord
	if err := json.Unmarshal(workerJSON, &worker); err != nil {
		r.logger.Error("Failed to unmarshal worker info", "error", err)
		return nil, fmt.Errorf("failed to unmarshal worker info: %w", err)
	}
	return &worker, nil
}

// UpdateWorkerHeartbeat refreshes the heartbeat timestamp and the expiry
func (r *WorkerRepository) UpdateWorkerHeartbeat(ctx context.Context, address string, heartbeatTime time.Time) error {
	worker, err := r.GetWorker(ctx, address)
	if err != nil {
		return err
	}
	if worker == nil {
		return nil
	}

	worker.LastHeartbeat = heartbeatTime
	workerJSON, err := json.Marshal(worker)
	if err != nil {
		return fmt.Errorf("failed to marshal worker info: %w", err)
	}
	if err := r.redisClient.Set(ctx, workerKey(address), workerJSON, r.expiration).Err(); err != nil {
		return fmt.Errorf("failed to update worker heartbeat: %w", err)
	}
	return nil
}

func (r *WorkerRepository) RemoveWorker(ctx context.Context, address string) error {
	worker, err := r.GetWorker(ctx, address)
	if err != nil {
		return err
	}

	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, workerKey(address))
		if worker != nil {
			for _, name := range servableNames(worker) {
				pipe.SRem(ctx, servableKey(name), address)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to remove worker", "address", address, "error", err)
		return fmt.Errorf("failed to remove worker: %w", err)
	}
	return nil
}

// GetWorkersByServable resolves the servable index. Index entries whose
// snapshot expired are pruned on the way.
func (r *WorkerRepository) GetWorkersByServable(ctx context.Context, servable string) ([]*domain.WorkerRecord, error) {
	addresses, err := r.redisClient.SMembers(ctx, servableKey(servable)).Result()
	if err != nil {
		r.logger.Error("Failed to get servable members", "servable", servable, "error", err)
		return nil, fmt.Errorf("failed to get servable members: %w", err)
	}

	keys := make([]string, len(addresses))
	for i, address := range addresses {
		keys[i] = workerKey(address)
	}
	workers, missing, err := r.load(ctx, keys)
	if err != nil {
		return nil, err
	}

	for _, i := range missing {
		if err := r.redisClient.SRem(ctx, servableKey(servable), addresses[i]).Err(); err != nil {
			r.logger.Debug("Failed to prune servable index", "address", addresses[i], "error", err)
		}
	}
	return workers, nil
}

// GetAllWorkers retrieves all worker information from Redis.
func (r *WorkerRepository) GetAllWorkers(ctx context.Context) ([]*domain.WorkerRecord, error) {
	keys, err := r.scan(ctx, workerKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	workers, _, err := r.load(ctx, keys)
	return workers, err
}

// Clear drops every worker snapshot and servable index
func (r *WorkerRepository) Clear(ctx context.Context) error {
	workerKeys, err := r.scan(ctx, workerKeyPrefix+"*")
	if err != nil {
		return err
	}
	servableKeys, err := r.scan(ctx, servableKeyPrefix+"*")
	if err != nil {
		return err
	}

	keys := append(workerKeys, servableKeys...)
	if len(keys) == 0 {
		return nil
	}
	if err := r.redisClient.Del(ctx, keys...).Err(); err != nil {
		r.logger.Error("Failed to clear workers", "error", err)
		return fmt.Errorf("failed to clear workers: %w", err)
	}
	return nil
}

func (r *WorkerRepository) scan(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var out []string
	for {
		keys, next, err := r.redisClient.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys %s: %w", pattern, err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

// load MGETs the given keys. It returns the decoded records sorted by address
// and the indexes of keys that no longer exist.
func (r *WorkerRepository) load(ctx context.Context, keys []string) ([]*domain.WorkerRecord, []int, error) {
	workers := make([]*domain.WorkerRecord, 0, len(keys))
	if len(keys) == 0 {
		return workers, nil, nil
	}

	workerData, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve worker data: %w", err)
	}

	var missing []int
	for i, data := range workerData {
		raw, ok := data.(string)
		if !ok {
			missing = append(missing, i)
			continue
		}
		var worker domain.WorkerRecord
		if err := json.Unmarshal([]byte(raw), &worker); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal worker data: %w", err)
		}
		workers = append(workers, &worker)
	}

	sort.Slice(workers, func(i, j int) bool { return workers[i].Address < workers[j].Address })
	return workers, missing, nil
}

func servableNames(worker *domain.WorkerRecord) []string {
	seen := make(map[string]struct{}, len(worker.Servables))
	var names []string
	for _, spec := range worker.Servables {
		if _, ok := seen[spec.Name]; ok {
			continue
		}
		seen[spec.Name] = struct{}{}
		names = append(names, spec.Name)
	}
	return names
}
