// Package worker runs solve requests asynchronously. Conversation state
// lives in process memory, so jobs flow through an in-process channel rather
// than a shared queue; Redis is used only to publish status updates for the
// WebSocket hub.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mathtutor-backend/internal/conversation"
	"mathtutor-backend/internal/models"
	"mathtutor-backend/internal/services"
)

// Solver is the single collaborator boundary to the solving backend.
type Solver interface {
	Solve(ctx context.Context, text string, level models.ExplanationLevel, imageB64 string) (*models.StructuredSolution, error)
}

// publisher is the slice of the Redis client the pool needs to fan solve
// status updates out to the WebSocket hub.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Pool struct {
	solver      Solver
	publisher   publisher
	jobs        chan conversation.SolveJob
	workerCount int
	stopChan    chan struct{}
}

func NewPool(solver Solver, statusPub publisher, workerCount int) *Pool {
	return &Pool{
		solver:      solver,
		publisher:   statusPub,
		jobs:        make(chan conversation.SolveJob, 64),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d solve workers", p.workerCount)
}

// Stop shuts the workers down and fails any job still buffered, so every
// dispatched job gets its one completion.
func (p *Pool) Stop() {
	close(p.stopChan)
	for {
		select {
		case job := <-p.jobs:
			job.Controller.Complete(context.Background(), job.Generation, job.Text, nil, errors.New("solve dispatcher stopped"))
		default:
			return
		}
	}
}

// Dispatch hands a solve job to the pool. During shutdown the job fails
// immediately so the controller still receives its one completion.
func (p *Pool) Dispatch(job conversation.SolveJob) {
	select {
	case p.jobs <- job:
	case <-p.stopChan:
		job.Controller.Complete(context.Background(), job.Generation, job.Text, nil, errors.New("solve dispatcher stopped"))
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Solve worker %d shutting down", id)
			return
		case job := <-p.jobs:
			p.process(id, job)
		}
	}
}

func (p *Pool) process(id int, job conversation.SolveJob) {
	ctx := context.Background()

	p.publishStatus(ctx, job.SessionID, models.SolveStatus{
		SessionID: job.SessionID,
		State:     "solving",
	})

	sol, err := p.solver.Solve(ctx, job.Text, job.Level, job.Image)
	if err != nil {
		// The taxonomy stays internal: both causes collapse into the
		// same fallback message user-side.
		var te *services.TransportError
		var de *services.DecodeError
		switch {
		case errors.As(err, &te):
			log.Printf("Worker %d: solve transport error for session %s: %v", id, job.SessionID, err)
		case errors.As(err, &de):
			log.Printf("Worker %d: solve decode error for session %s: %v", id, job.SessionID, err)
		default:
			log.Printf("Worker %d: solve error for session %s: %v", id, job.SessionID, err)
		}
	}

	msg, applied := job.Controller.Complete(ctx, job.Generation, job.Text, sol, err)
	if !applied {
		log.Printf("Worker %d: discarded stale solve result for session %s", id, job.SessionID)
		return
	}

	state := "solved"
	if err != nil {
		state = "failed"
	}
	p.publishStatus(ctx, job.SessionID, models.SolveStatus{
		SessionID: job.SessionID,
		State:     state,
		MessageID: msg.ID,
	})
}

// publishStatus fans a status update out to WebSocket clients via Redis
// pub/sub.
func (p *Pool) publishStatus(ctx context.Context, sessionID uuid.UUID, status models.SolveStatus) {
	data, _ := json.Marshal(models.WSMessage{Type: "solve_status", Payload: status})
	p.publisher.Publish(ctx, fmt.Sprintf("session_updates:%s", sessionID.String()), string(data))
}
