// Package sse tracks Server-Sent Events subscribers of public pages.
package sse

import "sync"

// Client receives events for Path, or for every path when Path is empty.
type Client struct {
	Msg  chan string
	Path string
}

func NewClient(path string) *Client {
	return &Client{
		Msg:  make(chan string, 4),
		Path: path,
	}
}

type SSEClients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[*Client]bool),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[client] {
		delete(s.clients, client)
		close(client.Msg)
	}
}

func (s *SSEClients) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends msg to the subscribers of path without blocking; slow
// clients miss the event.
func (s *SSEClients) Broadcast(path, msg string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sent := 0
	for client := range s.clients {
		if client.Path != "" && path != "" && client.Path != path {
			continue
		}
		select {
		case client.Msg <- msg:
			sent++
		default:
		}
	}
	return sent
}
