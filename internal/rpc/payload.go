package rpc

import (
	"time"

	"github.com/Dave93/velos/internal/logger"
	"github.com/Dave93/velos/internal/logring"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
)

// StartPayload carries a process definition for CmdProcessStart.
// Field order on the wire is fixed; both sides of the protocol share this
// encoding.
type StartPayload struct {
	Name           string
	Script         string
	Cwd            string
	Interpreter    string
	Args           []string
	Env            []string
	KillTimeoutMs  uint32
	AutoRestart    bool
	MaxRestarts    int32
	MinUptimeMs    uint64
	RestartDelayMs uint32
	ExpBackoff     bool
	MaxMemory      uint64

	LogDir     string
	StdoutPath string
	StderrPath string
	MaxSizeMB  uint32
	MaxBackups uint32
	MaxAgeDays uint32
	Compress   bool
}

func (p StartPayload) Encode() []byte {
	w := NewWriter()
	w.PutString(p.Name)
	w.PutString(p.Script)
	w.PutString(p.Cwd)
	w.PutString(p.Interpreter)
	w.PutStrings(p.Args)
	w.PutStrings(p.Env)
	w.PutU32(p.KillTimeoutMs)
	w.PutBool(p.AutoRestart)
	w.PutI32(p.MaxRestarts)
	w.PutU64(p.MinUptimeMs)
	w.PutU32(p.RestartDelayMs)
	w.PutBool(p.ExpBackoff)
	w.PutU64(p.MaxMemory)
	w.PutString(p.LogDir)
	w.PutString(p.StdoutPath)
	w.PutString(p.StderrPath)
	w.PutU32(p.MaxSizeMB)
	w.PutU32(p.MaxBackups)
	w.PutU32(p.MaxAgeDays)
	w.PutBool(p.Compress)
	return w.Bytes()
}

func DecodeStartPayload(data []byte) (StartPayload, error) {
	r := NewReader(data)
	var p StartPayload
	var err error
	if p.Name, err = r.String(); err != nil {
		return p, err
	}
	if p.Script, err = r.String(); err != nil {
		return p, err
	}
	if p.Cwd, err = r.String(); err != nil {
		return p, err
	}
	if p.Interpreter, err = r.String(); err != nil {
		return p, err
	}
	if p.Args, err = r.Strings(); err != nil {
		return p, err
	}
	if p.Env, err = r.Strings(); err != nil {
		return p, err
	}
	if p.KillTimeoutMs, err = r.U32(); err != nil {
		return p, err
	}
	if p.AutoRestart, err = r.Bool(); err != nil {
		return p, err
	}
	if p.MaxRestarts, err = r.I32(); err != nil {
		return p, err
	}
	if p.MinUptimeMs, err = r.U64(); err != nil {
		return p, err
	}
	if p.RestartDelayMs, err = r.U32(); err != nil {
		return p, err
	}
	if p.ExpBackoff, err = r.Bool(); err != nil {
		return p, err
	}
	if p.MaxMemory, err = r.U64(); err != nil {
		return p, err
	}
	if p.LogDir, err = r.String(); err != nil {
		return p, err
	}
	if p.StdoutPath, err = r.String(); err != nil {
		return p, err
	}
	if p.StderrPath, err = r.String(); err != nil {
		return p, err
	}
	if p.MaxSizeMB, err = r.U32(); err != nil {
		return p, err
	}
	if p.MaxBackups, err = r.U32(); err != nil {
		return p, err
	}
	if p.MaxAgeDays, err = r.U32(); err != nil {
		return p, err
	}
	if p.Compress, err = r.Bool(); err != nil {
		return p, err
	}
	return p, nil
}

// Config converts the wire payload to a process config.
func (p StartPayload) Config() process.Config {
	return process.Config{
		Name:         p.Name,
		Script:       p.Script,
		Cwd:          p.Cwd,
		Interpreter:  p.Interpreter,
		Args:         p.Args,
		Env:          p.Env,
		KillTimeout:  time.Duration(p.KillTimeoutMs) * time.Millisecond,
		AutoRestart:  p.AutoRestart,
		MaxRestarts:  int(p.MaxRestarts),
		MinUptime:    time.Duration(p.MinUptimeMs) * time.Millisecond,
		RestartDelay: time.Duration(p.RestartDelayMs) * time.Millisecond,
		ExpBackoff:   p.ExpBackoff,
		MaxMemory:    p.MaxMemory,
		Log: logger.Config{
			Dir:        p.LogDir,
			StdoutPath: p.StdoutPath,
			StderrPath: p.StderrPath,
			MaxSizeMB:  int(p.MaxSizeMB),
			MaxBackups: int(p.MaxBackups),
			MaxAgeDays: int(p.MaxAgeDays),
			Compress:   p.Compress,
		},
	}
}

// StartPayloadFromConfig builds the wire payload for cfg.
func StartPayloadFromConfig(cfg process.Config) StartPayload {
	return StartPayload{
		Name:           cfg.Name,
		Script:         cfg.Script,
		Cwd:            cfg.Cwd,
		Interpreter:    cfg.Interpreter,
		Args:           cfg.Args,
		Env:            cfg.Env,
		KillTimeoutMs:  uint32(cfg.KillTimeout / time.Millisecond),
		AutoRestart:    cfg.AutoRestart,
		MaxRestarts:    int32(cfg.MaxRestarts),
		MinUptimeMs:    uint64(cfg.MinUptime / time.Millisecond),
		RestartDelayMs: uint32(cfg.RestartDelay / time.Millisecond),
		ExpBackoff:     cfg.ExpBackoff,
		MaxMemory:      cfg.MaxMemory,
		LogDir:         cfg.Log.Dir,
		StdoutPath:     cfg.Log.StdoutPath,
		StderrPath:     cfg.Log.StderrPath,
		MaxSizeMB:      uint32(cfg.Log.MaxSizeMB),
		MaxBackups:     uint32(cfg.Log.MaxBackups),
		MaxAgeDays:     uint32(cfg.Log.MaxAgeDays),
		Compress:       cfg.Log.Compress,
	}
}

// StopPayload identifies a process to stop plus signal and grace timeout.
type StopPayload struct {
	ProcessID uint32
	Signal    uint8 // 0 = SIGTERM
	TimeoutMs uint32
}

func (p StopPayload) Encode() []byte {
	w := NewWriter()
	w.PutU32(p.ProcessID)
	w.PutU8(p.Signal)
	w.PutU32(p.TimeoutMs)
	return w.Bytes()
}

func DecodeStopPayload(data []byte) (StopPayload, error) {
	r := NewReader(data)
	var p StopPayload
	var err error
	if p.ProcessID, err = r.U32(); err != nil {
		return p, err
	}
	if p.Signal, err = r.U8(); err != nil {
		return p, err
	}
	if p.TimeoutMs, err = r.U32(); err != nil {
		return p, err
	}
	return p, nil
}

// EncodeID encodes a bare process id payload (restart, delete, info).
func EncodeID(id uint32) []byte {
	w := NewWriter()
	w.PutU32(id)
	return w.Bytes()
}

func DecodeID(data []byte) (uint32, error) {
	return NewReader(data).U32()
}

// EncodeCount encodes a bare count result (start reply, state load reply).
func EncodeCount(n uint32) []byte {
	w := NewWriter()
	w.PutU32(n)
	return w.Bytes()
}

func DecodeCount(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	return NewReader(data).U32()
}

// LogReadPayload requests the last Lines entries of a process's ring.
type LogReadPayload struct {
	ProcessID uint32
	Lines     uint32
}

func (p LogReadPayload) Encode() []byte {
	w := NewWriter()
	w.PutU32(p.ProcessID)
	w.PutU32(p.Lines)
	return w.Bytes()
}

func DecodeLogReadPayload(data []byte) (LogReadPayload, error) {
	r := NewReader(data)
	var p LogReadPayload
	var err error
	if p.ProcessID, err = r.U32(); err != nil {
		return p, err
	}
	if p.Lines, err = r.U32(); err != nil {
		return p, err
	}
	return p, nil
}

// EncodeLogEntries encodes ring entries as count-prefixed rows of
// (timestamp_ms u64, level u8, stream u8, message).
func EncodeLogEntries(entries []logring.Entry) []byte {
	w := NewWriter()
	w.PutU32(uint32(len(entries)))
	for _, e := range entries {
		w.PutU64(uint64(e.Time.UnixMilli()))
		w.PutU8(uint8(e.Level))
		w.PutU8(uint8(e.Stream))
		w.PutString(e.Message)
	}
	return w.Bytes()
}

// LogEntry is the client-side view of one decoded log row.
type LogEntry struct {
	TimestampMs uint64 `json:"timestamp_ms"`
	Level       uint8  `json:"level"`
	Stream      uint8  `json:"stream"`
	Message     string `json:"message"`
}

func DecodeLogEntries(data []byte) ([]LogEntry, error) {
	r := NewReader(data)
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, count)
	for range count {
		var e LogEntry
		if e.TimestampMs, err = r.U64(); err != nil {
			return nil, err
		}
		if e.Level, err = r.U8(); err != nil {
			return nil, err
		}
		if e.Stream, err = r.U8(); err != nil {
			return nil, err
		}
		if e.Message, err = r.String(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ProcessRow is one list() row on the wire.
type ProcessRow struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name"`
	PID      uint32 `json:"pid"`
	Status   uint8  `json:"status"`
	Memory   uint64 `json:"memory_bytes"`
	UptimeMs uint64 `json:"uptime_ms"`
	Restarts uint32 `json:"restart_count"`
}

// StatusString renders the wire status code.
func (p ProcessRow) StatusString() string {
	return process.StatusFromCode(p.Status).String()
}

// EncodeProcessList encodes summaries as count-prefixed rows.
func EncodeProcessList(sums []registry.Summary) []byte {
	w := NewWriter()
	w.PutU32(uint32(len(sums)))
	for _, s := range sums {
		w.PutU32(s.ID)
		w.PutString(s.Name)
		w.PutU32(uint32(s.PID))
		w.PutU8(s.Status.Code())
		w.PutU64(s.Memory)
		w.PutU64(uint64(s.Uptime / time.Millisecond))
		w.PutU32(s.Restarts)
	}
	return w.Bytes()
}

func DecodeProcessList(data []byte) ([]ProcessRow, error) {
	r := NewReader(data)
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	rows := make([]ProcessRow, 0, count)
	for range count {
		var row ProcessRow
		if row.ID, err = r.U32(); err != nil {
			return nil, err
		}
		if row.Name, err = r.String(); err != nil {
			return nil, err
		}
		if row.PID, err = r.U32(); err != nil {
			return nil, err
		}
		if row.Status, err = r.U8(); err != nil {
			return nil, err
		}
		if row.Memory, err = r.U64(); err != nil {
			return nil, err
		}
		if row.UptimeMs, err = r.U64(); err != nil {
			return nil, err
		}
		if row.Restarts, err = r.U32(); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ProcessDetail is the full info() view: the list row fields followed by
// the crash streak and the process definition.
type ProcessDetail struct {
	ProcessRow
	Consecutive    uint32 `json:"consecutive_crashes"`
	Script         string `json:"script"`
	Cwd            string `json:"cwd,omitempty"`
	Interpreter    string `json:"interpreter,omitempty"`
	KillTimeoutMs  uint32 `json:"kill_timeout_ms"`
	AutoRestart    bool   `json:"autorestart"`
	MaxRestarts    int32  `json:"max_restarts"`
	MinUptimeMs    uint64 `json:"min_uptime_ms"`
	RestartDelayMs uint32 `json:"restart_delay_ms"`
	ExpBackoff     bool   `json:"exp_backoff_restart_delay"`
	MaxMemory      uint64 `json:"max_memory_restart"`
}

// EncodeProcessDetail encodes a full entry snapshot.
func EncodeProcessDetail(e registry.Entry) []byte {
	uptime := uint64(0)
	if e.Runtime.Status == process.Running && !e.Runtime.StartedAt.IsZero() {
		uptime = uint64(time.Since(e.Runtime.StartedAt) / time.Millisecond)
	}
	w := NewWriter()
	w.PutU32(e.ID)
	w.PutString(e.Config.Name)
	w.PutU32(uint32(e.Runtime.PID))
	w.PutU8(e.Runtime.Status.Code())
	w.PutU64(e.Runtime.Memory)
	w.PutU64(uptime)
	w.PutU32(e.Runtime.Restarts)
	w.PutU32(uint32(e.Runtime.Consecutive))
	w.PutString(e.Config.Script)
	w.PutString(e.Config.Cwd)
	w.PutString(e.Config.Interpreter)
	w.PutU32(uint32(e.Config.KillTimeout / time.Millisecond))
	w.PutBool(e.Config.AutoRestart)
	w.PutI32(int32(e.Config.MaxRestarts))
	w.PutU64(uint64(e.Config.MinUptime / time.Millisecond))
	w.PutU32(uint32(e.Config.RestartDelay / time.Millisecond))
	w.PutBool(e.Config.ExpBackoff)
	w.PutU64(e.Config.MaxMemory)
	return w.Bytes()
}

func DecodeProcessDetail(data []byte) (ProcessDetail, error) {
	r := NewReader(data)
	var d ProcessDetail
	var err error
	if d.ID, err = r.U32(); err != nil {
		return d, err
	}
	if d.Name, err = r.String(); err != nil {
		return d, err
	}
	if d.PID, err = r.U32(); err != nil {
		return d, err
	}
	if d.Status, err = r.U8(); err != nil {
		return d, err
	}
	if d.Memory, err = r.U64(); err != nil {
		return d, err
	}
	if d.UptimeMs, err = r.U64(); err != nil {
		return d, err
	}
	if d.Restarts, err = r.U32(); err != nil {
		return d, err
	}
	if d.Consecutive, err = r.U32(); err != nil {
		return d, err
	}
	if d.Script, err = r.String(); err != nil {
		return d, err
	}
	if d.Cwd, err = r.String(); err != nil {
		return d, err
	}
	if d.Interpreter, err = r.String(); err != nil {
		return d, err
	}
	if d.KillTimeoutMs, err = r.U32(); err != nil {
		return d, err
	}
	if d.AutoRestart, err = r.Bool(); err != nil {
		return d, err
	}
	if d.MaxRestarts, err = r.I32(); err != nil {
		return d, err
	}
	if d.MinUptimeMs, err = r.U64(); err != nil {
		return d, err
	}
	if d.RestartDelayMs, err = r.U32(); err != nil {
		return d, err
	}
	if d.ExpBackoff, err = r.Bool(); err != nil {
		return d, err
	}
	if d.MaxMemory, err = r.U64(); err != nil {
		return d, err
	}
	return d, nil
}
