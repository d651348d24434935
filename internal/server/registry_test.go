package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"taskchat/internal/types"
)

func testClient(userId int) *Client {
	return &Client{
		user:  types.User{Id: userId, Username: "testuser"},
		send:  make(chan *ServerEvent, 256),
		rooms: make(map[int]*Room),
		stop:  make(chan struct{}),
	}
}

func TestRegistryFirstAndLast(t *testing.T) {
	reg := NewConnectionRegistry()

	c1 := testClient(1)
	c2 := testClient(1)

	assert.True(t, reg.Add(c1), "first socket reports first")
	assert.False(t, reg.Add(c2), "second socket is not first")
	assert.True(t, reg.IsOnline(1))
	assert.Equal(t, 1, reg.NumUsers())
	assert.Equal(t, 2, reg.NumConnections())

	assert.False(t, reg.Remove(c1), "user still holds a socket")
	assert.True(t, reg.IsOnline(1))
	assert.True(t, reg.Remove(c2), "last socket reports last")
	assert.False(t, reg.IsOnline(1))
	assert.Equal(t, 0, reg.NumUsers())
}

func TestRegistryRemoveUnknownClient(t *testing.T) {
	reg := NewConnectionRegistry()

	assert.False(t, reg.Remove(testClient(1)), "unknown user")

	c1 := testClient(1)
	reg.Add(c1)
	assert.False(t, reg.Remove(testClient(1)), "unknown socket for known user")
	assert.True(t, reg.IsOnline(1))
}

func TestRegistryClientsForSnapshot(t *testing.T) {
	reg := NewConnectionRegistry()

	c1, c2, c3 := testClient(1), testClient(1), testClient(2)
	reg.Add(c1)
	reg.Add(c2)
	reg.Add(c3)

	clients := reg.ClientsFor(1)
	assert.Len(t, clients, 2)
	assert.NotContains(t, clients, c3)

	assert.Len(t, reg.ClientsFor(99), 0)
	assert.Len(t, reg.All(), 3)
}

func TestRegistryConcurrentAddRemove(t *testing.T) {
	reg := NewConnectionRegistry()

	const perUser = 50
	var wg sync.WaitGroup
	clients := make([]*Client, perUser)

	for i := range clients {
		clients[i] = testClient(1)
	}

	var firsts int64
	var mu sync.Mutex
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if reg.Add(c) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int64(1), firsts, "exactly one add observes the first socket")
	assert.Equal(t, perUser, reg.NumConnections())

	var lasts int64
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if reg.Remove(c) {
				mu.Lock()
				lasts++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int64(1), lasts, "exactly one remove observes the last socket")
	assert.False(t, reg.IsOnline(1))
}
