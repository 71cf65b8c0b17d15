package memory_test

import (
	"testing"
	"time"

	"github.com/aretw0/promptflow/pkg/adapters/memory"
	"github.com/aretw0/promptflow/pkg/ports"
)

func TestJobStore_Contract(t *testing.T) {
	ports.RunJobStoreContract(t, memory.NewJobStore())
}

func TestBroker_Contract(t *testing.T) {
	ports.RunInputChannelContract(t, memory.NewBroker())
}

func TestQueue_Contract(t *testing.T) {
	q := memory.NewQueue(
		memory.WithWorkers(2),
		memory.WithRetryPolicy(ports.RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Millisecond}),
	)
	ports.RunTaskQueueContract(t, q)
}

func TestLocker_Contract(t *testing.T) {
	ports.RunLockerContract(t, memory.NewLocker())
}
