// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"tcmutarget/pkg/scsi"
	"tcmutarget/pkg/tcmu"
)

const defaultQueueDepth = 64

// Executor moves command execution off the event loop. Every device gets a
// serial queue, so its commands run and complete in arrival order, while a
// process wide semaphore bounds how many devices do storage I/O at once.
type Executor struct {
	workers    *semaphore.Weighted
	queueDepth int

	mutex  sync.Mutex
	queues map[tcmu.Device]*deviceQueue
}

type queuedCommand struct {
	state   *BackendState
	command *tcmu.Command
}

type deviceQueue struct {
	device   tcmu.Device
	commands chan queuedCommand
	done     chan struct{}
}

func NewExecutor(workers, queueDepth int) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	return &Executor{
		workers:    semaphore.NewWeighted(int64(workers)),
		queueDepth: queueDepth,
		queues:     make(map[tcmu.Device]*deviceQueue),
	}
}

// Submit queues command for device. It blocks while the queue of the device
// is full.
func (executor *Executor) Submit(device tcmu.Device, state *BackendState, command *tcmu.Command) {
	executor.mutex.Lock()
	queue, ok := executor.queues[device]
	if !ok {
		queue = &deviceQueue{
			device:   device,
			commands: make(chan queuedCommand, executor.queueDepth),
			done:     make(chan struct{}),
		}
		executor.queues[device] = queue
		go executor.serve(queue)
	}
	executor.mutex.Unlock()
	queue.commands <- queuedCommand{state: state, command: command}
}

func (executor *Executor) serve(queue *deviceQueue) {
	defer close(queue.done)
	completed := false
	for item := range queue.commands {
		// Acquire only fails on a cancelled context
		_ = executor.workers.Acquire(context.Background(), 1)
		status := Dispatch(item.state, item.command)
		executor.workers.Release(1)
		if status != tcmu.StatusAsyncHandled {
			queue.device.CompleteCommand(item.command, status)
			completed = true
		}
		if completed && len(queue.commands) == 0 {
			queue.device.ProcessingComplete()
			completed = false
		}
	}
	if completed {
		queue.device.ProcessingComplete()
	}
}

// Stop drains the queue of device and waits for its worker to exit.
func (executor *Executor) Stop(device tcmu.Device) {
	executor.mutex.Lock()
	queue, ok := executor.queues[device]
	delete(executor.queues, device)
	executor.mutex.Unlock()
	if !ok {
		return
	}
	close(queue.commands)
	<-queue.done
}

// StopAll stops every device queue.
func (executor *Executor) StopAll() {
	executor.mutex.Lock()
	queues := executor.queues
	executor.queues = make(map[tcmu.Device]*deviceQueue)
	executor.mutex.Unlock()
	for _, queue := range queues {
		close(queue.commands)
	}
	for _, queue := range queues {
		<-queue.done
	}
}

// dispatch hands command over, its completion is reported by the worker.
func (executor *Executor) dispatch(device tcmu.Device, state *BackendState, command *tcmu.Command) scsi.Status {
	executor.Submit(device, state, command)
	return tcmu.StatusAsyncHandled
}
