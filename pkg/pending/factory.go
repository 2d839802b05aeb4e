package pending

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	BackendMemory     = "memory"
	BackendRedis      = "redis"
	BackendKubernetes = "kubernetes"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Namespace  string
	Kubeconfig string
}

// New opens the backend named in opts. Remote backends are checked for
// reachability before returning.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", opts.RedisAddr, err)
		}
		return NewRedisStore(client), nil

	case BackendKubernetes:
		config, err := RESTConfig(opts.Kubeconfig)
		if err != nil {
			return nil, err
		}
		return NewKubernetesStoreForConfig(config, opts.Namespace)

	default:
		return nil, fmt.Errorf("unknown pending login backend %q", opts.Backend)
	}
}

// RESTConfig loads cluster access from kubeconfig, or from the in-cluster
// service account when kubeconfig is empty.
func RESTConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
		}
		return config, nil
	}
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
	}
	return config, nil
}

// Close releases the resources held by s, such as the memory store's
// expiry goroutine or the Redis client. Backends without any are a no-op.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
