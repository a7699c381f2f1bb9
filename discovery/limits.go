package discovery

import "sync"

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// limits caps concurrent sessions per requester and overall
type limits struct {
	mu      sync.Mutex
	perIP   map[string]int
	total   int
	maxIP   int
	maxConn int
}

func newLimits() *limits {
	return &limits{
		perIP:   make(map[string]int),
		maxIP:   maxConnsPerIP,
		maxConn: maxTotalConns,
	}
}

// acquire reserves a slot for ip, returning false when a cap is reached
func (l *limits) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total >= l.maxConn || l.perIP[ip] >= l.maxIP {
		return false
	}
	l.perIP[ip]++
	l.total++
	return true
}

func (l *limits) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] == 0 {
		return
	}
	l.perIP[ip]--
	if l.perIP[ip] <= 0 {
		delete(l.perIP, ip)
	}
	l.total--
}

func (l *limits) count(ip string) (perIP, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip], l.total
}
