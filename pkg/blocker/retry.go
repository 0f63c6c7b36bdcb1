package blocker

import (
	"log"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/metrics"
	"github.com/ShanpreetSingh/cyber-siege/pkg/unix_time"
)

const (
	opBlock   = "block"
	opUnblock = "unblock"

	retryBaseDelay   = 10 * time.Second
	retryMaxDelay    = 5 * time.Minute
	retryMaxAttempts = 8
)

// pendingOp is a firewall call that failed and waits for a sweep pass.
type pendingOp struct {
	op       string
	source   string
	attempts int
	nextTry  time.Time
}

func retryKey(op, source string) string {
	return op + " " + source
}

// queueRetry schedules a failed firewall call for replay. A new op
// supersedes a pending one in the opposite direction for the same source.
func (b *Blocker) queueRetry(op, source string, now time.Time) {
	opposite := opBlock
	if op == opBlock {
		opposite = opUnblock
	}

	b.retryLock.Lock()
	defer b.retryLock.Unlock()

	delete(b.retries, retryKey(opposite, source))

	key := retryKey(op, source)
	if _, ok := b.retries[key]; ok {
		return
	}

	b.retries[key] = &pendingOp{
		op:      op,
		source:  source,
		nextTry: now.Add(retryBaseDelay),
	}
}

// retryPending replays due firewall calls, dropping ops that no longer
// match the store. It returns the number of attempted replays.
func (b *Blocker) retryPending(now time.Time) int {
	b.retryLock.Lock()
	due := make([]*pendingOp, 0, len(b.retries))
	for _, p := range b.retries {
		if !now.Before(p.nextTry) {
			due = append(due, p)
		}
	}
	b.retryLock.Unlock()

	retried := 0
	for _, p := range due {
		blocked := b.store.IsBlocked(p.source, now)
		if (p.op == opBlock && !blocked) || (p.op == opUnblock && blocked) {
			b.dropRetry(p)
			continue
		}

		var err error
		if p.op == opBlock {
			err = b.firewall.Block(p.source)
		} else {
			err = b.firewall.Unblock(p.source)
		}

		metrics.FirewallRetries.Inc()
		retried++

		if err == nil {
			log.Printf("firewall %v of %v succeeded after %v attempts\n", p.op, p.source, p.attempts+1)
			b.dropRetry(p)
			continue
		}

		metrics.FirewallErrors.Inc()
		b.reschedule(p, now, err)
	}

	return retried
}

func (b *Blocker) dropRetry(p *pendingOp) {
	b.retryLock.Lock()
	defer b.retryLock.Unlock()

	delete(b.retries, retryKey(p.op, p.source))
}

// reschedule doubles the delay up to a ceiling and gives up, audibly,
// once the attempt budget is spent.
func (b *Blocker) reschedule(p *pendingOp, now time.Time, err error) {
	b.retryLock.Lock()
	p.attempts++
	gaveUp := p.attempts >= retryMaxAttempts
	if gaveUp {
		delete(b.retries, retryKey(p.op, p.source))
	} else {
		delay := retryBaseDelay << uint(p.attempts)
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
		p.nextTry = now.Add(delay)
	}
	b.retryLock.Unlock()

	if gaveUp {
		metrics.RetriesAbandoned.Inc()
		log.Printf("giving up on firewall %v of %v after %v attempts: %v\n", p.op, p.source, p.attempts, err)
		b.decide(p.source, ActionGiveUp, p.op, now, unix_time.Time{})
		return
	}

	log.Printf("firewall %v of %v failed, attempt %v: %v\n", p.op, p.source, p.attempts, err)
}
