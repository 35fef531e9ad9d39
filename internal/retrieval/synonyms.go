package retrieval

// DefaultSynonyms maps common programming and systems terms to neighbors the
// corpus may use instead. The table is language-neutral: it bridges the
// vocabulary gap between how people ask and how documentation and code name
// things, without assuming any one programming language.
//
// Used by the CRAG query-expansion correction; callers can replace or extend
// the table through configuration.
var DefaultSynonyms = map[string][]string{
	// Execution model
	"async":       {"asynchronous", "concurrent", "non-blocking"},
	"sync":        {"synchronous", "blocking", "sequential"},
	"concurrent":  {"parallel", "async", "simultaneous"},
	"parallel":    {"concurrent", "multithreaded"},
	"thread":      {"worker", "goroutine", "process"},
	"coroutine":   {"fiber", "green thread", "task"},
	"lock":        {"mutex", "semaphore", "synchronization"},
	"deadlock":    {"livelock", "contention", "starvation"},
	"race":        {"data race", "race condition", "concurrency bug"},
	"cancel":      {"abort", "interrupt", "stop"},
	"timeout":     {"deadline", "expiry", "time limit"},

	// Interfaces and shapes
	"function":  {"method", "procedure", "routine"},
	"interface": {"contract", "protocol", "trait"},
	"struct":    {"record", "type", "object"},
	"module":    {"package", "component", "library"},
	"api":       {"endpoint", "interface", "surface"},

	// Failure handling
	"error":     {"fault", "failure", "exception"},
	"exception": {"error", "panic", "fault"},
	"retry":     {"backoff", "reattempt", "resilience"},
	"fallback":  {"degradation", "recovery", "alternative"},
	"crash":     {"panic", "abort", "fatal"},

	// Data plumbing
	"queue":     {"buffer", "channel", "fifo"},
	"stream":    {"pipeline", "flow", "feed"},
	"cache":     {"memoization", "store", "buffer"},
	"database":  {"storage", "datastore", "persistence"},
	"index":     {"catalog", "lookup", "inverted index"},
	"serialize": {"encode", "marshal", "format"},
	"parse":     {"decode", "unmarshal", "tokenize"},
	"hash":      {"digest", "checksum", "fingerprint"},

	// Networking
	"server":   {"daemon", "service", "listener"},
	"client":   {"consumer", "caller", "connection"},
	"request":  {"call", "query", "message"},
	"response": {"reply", "result", "answer"},
	"socket":   {"connection", "port", "endpoint"},

	// Search and retrieval
	"search":    {"query", "lookup", "retrieval"},
	"retrieve":  {"fetch", "search", "lookup"},
	"rank":      {"score", "order", "sort"},
	"embedding": {"vector", "representation", "encoding"},
	"semantic":  {"meaning", "conceptual", "vector"},
	"keyword":   {"lexical", "term", "token"},

	// Configuration and lifecycle
	"config":   {"configuration", "settings", "options"},
	"init":     {"initialize", "setup", "bootstrap"},
	"shutdown": {"teardown", "stop", "cleanup"},
	"deploy":   {"release", "rollout", "ship"},
	"log":      {"trace", "record", "audit"},
	"metric":   {"counter", "gauge", "measurement"},
}
