package memory

import "sync"

// subscriber доставляет события подписчику по порядку в отдельной горутине.
// Очередь не ограничена, поэтому push не блокирует писателя.
type subscriber struct {
	mu    sync.Mutex
	queue []func()

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go s.loop()

	return s
}

func (s *subscriber) push(event func()) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// close останавливает доставку и ждет завершения текущего события.
// Нельзя вызывать из обработчика этого же подписчика.
func (s *subscriber) close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	<-s.done
}

func (s *subscriber) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *subscriber) loop() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}

			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if s.stopped() {
				return
			}

			event()
		}
	}
}
