// Package scrambler implements the scrambler processor: the crypto-period
// state machine, ECM scheduling, PMT patching, degraded-mode recovery and
// partial/already-scrambled handling described in spec.md §4.5. Grounded
// on internal/scrambling for the keyed cipher, internal/ecmgscs for the
// ECMG/SCS client abstraction, and internal/psi for PAT/PMT parsing and the
// cycling PMT packetizer.
package scrambler

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/ecmgscs"
	"github.com/zsiec/tsproc/internal/psi"
	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/scrambling"
	"github.com/zsiec/tsproc/internal/stage"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// parsePIDList parses a comma-separated list of decimal or 0x-prefixed
// hexadecimal PID values, as accepted by --pid.
func parsePIDList(s string) ([]uint16, error) {
	var out []uint16
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseUint(field, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid PID %q: %w", field, err)
		}
		out = append(out, uint16(v))
	}
	return out, nil
}

// cpSlot holds one crypto-period's state: its control word, the ECM packet
// vector once generated, and the async-arrival flag. ecmOK is written last
// by the ECMG callback goroutine and read by the packet loop, giving it
// release/acquire semantics over ecmPackets (spec.md §5's "must be a
// release-store/acquire-load pair").
type cpSlot struct {
	mu        sync.Mutex
	cpNumber  uint16
	cw        scrambling.ControlWord
	ecmOK     bool
	ecmPkts   [][]byte
	ecmCursor int
	err       error
}

func (s *cpSlot) setECM(pkts [][]byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ecmPkts = pkts
	s.ecmCursor = 0
	s.err = err
	s.ecmOK = true
}

func (s *cpSlot) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ecmOK
}

func (s *cpSlot) reset(cpNumber uint16, cw scrambling.ControlWord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpNumber = cpNumber
	s.cw = cw
	s.ecmOK = false
	s.ecmPkts = nil
	s.ecmCursor = 0
	s.err = nil
}

func (s *cpSlot) nextECMPacket() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ecmOK || len(s.ecmPkts) == 0 {
		return nil, false
	}
	pkt := s.ecmPkts[s.ecmCursor]
	s.ecmCursor = (s.ecmCursor + 1) % len(s.ecmPkts)
	return pkt, true
}

// Scrambler implements stage.Processor and stage.BitrateAware. It is not
// joint-terminable: scrambling is a transformation, not a source that runs
// dry.
type Scrambler struct {
	log *slog.Logger

	client       ecmgscs.Client
	ecmgVer      ecmgscs.Version
	cpDuration   time.Duration
	ecmBitrate   uint64
	superCASID   uint32
	accessCrit   []byte
	privateData  []byte
	componentLvl bool
	scheme       byte // 0 = DVB-CSA2 default, needs no scrambling_descriptor

	explicitPIDs      map[uint16]bool
	scrambleAudio     bool
	scrambleVideo     bool
	scrambleSubtitles bool
	ecmPIDOverride    *uint16
	partialK          int64
	ignoreScrambled   bool
	synchronousOnly   bool

	bitrate stage.BitrateSource

	// PAT/PMT discovery: either pmtPIDOverride is given directly, or the
	// scrambler watches PID 0x0000 for the PAT and picks serviceID's PMT
	// PID (or the first program, if serviceID is nil).
	pmtPIDOverride *uint16
	serviceID      *uint16
	acc            *psi.Accumulator
	patSeen        bool
	pendingPMTPID  uint16

	// runtime state, populated once the PMT is seen
	pmtSeen     bool
	pmtPID      uint16
	ecmPID      uint16
	scrambled   map[uint16]bool
	pmt         *psi.PMT
	packetizer  *psi.CyclingPacketizer
	ecmCC       uint8

	cipher *scrambling.Cipher
	cp     [2]cpSlot

	currentCW  int
	currentECM int
	cpNumber   uint16

	delayStart time.Duration

	degraded       bool
	postponedKind  string // "cw" or "ecm", pending action when exiting degraded mode

	pktCounter    int64
	pktChangeCW   int64
	pktChangeECM  int64
	pktInsertECM  int64

	partialCountdown int64

	alreadyScrambledLogged map[uint16]bool
	aborted                error
}

// Config bundles the scrambler's construction-time options. It is exported
// so cmd/tsp can wire an ecmgscs.Client implementation (real or mock) into
// the processor without the flag grammar also having to express it.
type Config struct {
	Client            ecmgscs.Client
	CPDuration        time.Duration
	ECMBitrate        uint64
	SuperCASID        uint32
	AccessCriteria    []byte
	PrivateData       []byte
	ComponentLevel    bool
	PIDs              []uint16
	ScrambleAudio     bool
	ScrambleVideo     bool
	ScrambleSubtitles bool
	ECMPID            *uint16
	PartialK          int64
	IgnoreScrambled   bool
	Synchronous       bool
	// PMTPID, if set, names the PID carrying the target service's PMT
	// directly, skipping PAT discovery. Otherwise the scrambler watches
	// PID 0x0000 for the PAT and uses ServiceID's program (or the PAT's
	// first program, if ServiceID is nil) to learn the PMT PID.
	PMTPID    *uint16
	ServiceID *uint16

	// ECMGVersion selects the ECMG<->SCS protocol revision the default
	// LocalClient negotiates (spec.md §9). Ignored when Client is set
	// explicitly, since a real client picks its own version at ChannelSetup.
	ECMGVersion ecmgscs.Version
}

// New parses the scrambler's command-line flags (spec.md §4.5 plus the
// supplemented original-source options named in SPEC_FULL.md §6.6) and
// merges them with cfg: any cfg field left at its zero value is filled in
// from the flags, so tests can inject a Config{Client: mockClient, ...}
// directly while cmd/tsp can drive everything from argv. Only Client has
// no textual CLI form per se: when cfg.Client is nil, New builds a
// LocalClient (internal/ecmgscs) from the ecmg-* flags below, since the
// real ECMG network client is an out-of-scope collaborator (spec.md §1).
func New(args []string, cfg Config, log *slog.Logger) (*Scrambler, error) {
	fs := flag.NewFlagSet("scrambler", flag.ContinueOnError)
	cpDuration := fs.Duration("cp-duration", 10*time.Second, "crypto-period duration")
	ecmBitrate := fs.Uint64("ecm-bitrate", 3000, "ECM insertion bitrate in bits/second")
	superCASID := fs.Uint64("super-cas-id", 0, "CA_descriptor CA_system_id source (top 16 bits used)")
	accessCriteria := fs.String("access-criteria", "", "hex-encoded access criteria passed to the ECMG")
	privateData := fs.String("private-data", "", "hex-encoded CA_descriptor private data")
	componentLevel := fs.Bool("component-level", false, "duplicate the CA_descriptor at each scrambled component instead of program level")
	pidList := fs.String("pid", "", "comma-separated list of explicit PIDs to scramble (overrides audio/video/subtitles)")
	scrambleAudio := fs.Bool("audio", false, "scramble the service's audio streams")
	scrambleVideo := fs.Bool("video", false, "scramble the service's video streams")
	scrambleSubtitles := fs.Bool("subtitles", false, "scramble the service's subtitle streams")
	ecmPID := fs.Int64("ecm-pid", -1, "force the ECM PID instead of picking the lowest unused one")
	partial := fs.Int64("partial-scrambling", 1, "scramble one packet out of every N eligible packets")
	ignoreScrambled := fs.Bool("ignore-scrambled", false, "log and pass through already-scrambled packets instead of aborting")
	synchronous := fs.Bool("synchronous", false, "always generate ECMs synchronously, never asynchronously")
	pmtPID := fs.Int64("pmt-pid", -1, "PID carrying the target service's PMT directly, skipping PAT discovery")
	serviceID := fs.Int64("service-id", -1, "target service (program_number); defaults to the PAT's first program")
	ecmgDelayStart := fs.Duration("ecmg-delay-start", 0, "LocalClient's simulated channel_status.delay_start")
	ecmgAsyncDelay := fs.Duration("ecmg-async-delay", 0, "LocalClient's simulated async ECM generation latency")
	ecmPacketCount := fs.Int("ecmg-packet-count", 1, "LocalClient's synthetic ECM packet vector length per crypto-period")
	ecmgVersion := fs.Int("ecmg-version", 3, "ECMG<->SCS protocol revision the LocalClient negotiates (2 or 3)")
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "scrambler")
		return nil, flag.ErrHelp
	}

	if cfg.CPDuration <= 0 {
		cfg.CPDuration = *cpDuration
	}
	if cfg.ECMBitrate == 0 {
		cfg.ECMBitrate = *ecmBitrate
	}
	if cfg.SuperCASID == 0 {
		cfg.SuperCASID = uint32(*superCASID)
	}
	if len(cfg.AccessCriteria) == 0 && *accessCriteria != "" {
		b, err := hex.DecodeString(*accessCriteria)
		if err != nil {
			return nil, fmt.Errorf("scrambler: --access-criteria: %w", err)
		}
		cfg.AccessCriteria = b
	}
	if len(cfg.PrivateData) == 0 && *privateData != "" {
		b, err := hex.DecodeString(*privateData)
		if err != nil {
			return nil, fmt.Errorf("scrambler: --private-data: %w", err)
		}
		cfg.PrivateData = b
	}
	if !cfg.ComponentLevel {
		cfg.ComponentLevel = *componentLevel
	}
	if len(cfg.PIDs) == 0 && *pidList != "" {
		pids, err := parsePIDList(*pidList)
		if err != nil {
			return nil, fmt.Errorf("scrambler: --pid: %w", err)
		}
		cfg.PIDs = pids
	}
	if !cfg.ScrambleAudio {
		cfg.ScrambleAudio = *scrambleAudio
	}
	if !cfg.ScrambleVideo {
		cfg.ScrambleVideo = *scrambleVideo
	}
	if !cfg.ScrambleSubtitles {
		cfg.ScrambleSubtitles = *scrambleSubtitles
	}
	if cfg.ECMPID == nil && *ecmPID >= 0 {
		v := uint16(*ecmPID)
		cfg.ECMPID = &v
	}
	if cfg.PartialK == 0 {
		cfg.PartialK = *partial
	}
	if !cfg.IgnoreScrambled {
		cfg.IgnoreScrambled = *ignoreScrambled
	}
	if !cfg.Synchronous {
		cfg.Synchronous = *synchronous
	}
	if cfg.PMTPID == nil && *pmtPID >= 0 {
		v := uint16(*pmtPID)
		cfg.PMTPID = &v
	}
	if cfg.ServiceID == nil && *serviceID >= 0 {
		v := uint16(*serviceID)
		cfg.ServiceID = &v
	}
	if cfg.ECMGVersion == 0 {
		switch *ecmgVersion {
		case 2:
			cfg.ECMGVersion = ecmgscs.Version2
		case 3:
			cfg.ECMGVersion = ecmgscs.Version3
		default:
			return nil, fmt.Errorf("scrambler: --ecmg-version must be 2 or 3, got %d", *ecmgVersion)
		}
	}
	if cfg.Client == nil {
		cfg.Client = ecmgscs.NewLocalClient(cfg.ECMGVersion, *ecmgDelayStart, *ecmgAsyncDelay, *ecmPacketCount)
	}
	if log == nil {
		log = slog.Default()
	}

	explicit := map[uint16]bool{}
	for _, p := range cfg.PIDs {
		explicit[p] = true
	}

	partialK := cfg.PartialK
	if partialK < 1 {
		partialK = 1
	}

	return &Scrambler{
		log:                    log.With("component", "scrambler"),
		client:                 cfg.Client,
		ecmgVer:                cfg.ECMGVersion,
		cpDuration:             cfg.CPDuration,
		ecmBitrate:             cfg.ECMBitrate,
		superCASID:             cfg.SuperCASID,
		accessCrit:             cfg.AccessCriteria,
		privateData:            cfg.PrivateData,
		componentLvl:           cfg.ComponentLevel,
		explicitPIDs:           explicit,
		scrambleAudio:          cfg.ScrambleAudio,
		scrambleVideo:          cfg.ScrambleVideo,
		scrambleSubtitles:      cfg.ScrambleSubtitles,
		ecmPIDOverride:         cfg.ECMPID,
		partialK:               partialK,
		ignoreScrambled:        cfg.IgnoreScrambled,
		synchronousOnly:        cfg.Synchronous,
		pmtPIDOverride:         cfg.PMTPID,
		serviceID:              cfg.ServiceID,
		acc:                    psi.NewAccumulator(),
		scrambled:              map[uint16]bool{},
		cipher:                 scrambling.NewCipher(),
		alreadyScrambledLogged: map[uint16]bool{},
		partialCountdown:       partialK - 1,
	}, nil
}

func (s *Scrambler) SetBitrateSource(b stage.BitrateSource) { s.bitrate = b }

// ecmgVersion reports the ECMG<->SCS protocol revision this scrambler was
// configured with (spec.md §9).
func (s *Scrambler) ecmgVersion() ecmgscs.Version { return s.ecmgVer }

func (s *Scrambler) Start(ctx context.Context) error {
	s.log.Info("starting ECMG channel", "ecmg_version", s.ecmgVer)
	status, err := s.client.ChannelSetup(ctx)
	if err != nil {
		return fmt.Errorf("scrambler: ECMG channel setup: %w", err)
	}
	if status.DelayStart > s.cpDuration/2 || status.DelayStart < -s.cpDuration/2 {
		return fmt.Errorf("scrambler: ECMG delay_start %v exceeds ±cp_duration/2 (%v)", status.DelayStart, s.cpDuration/2)
	}
	s.delayStart = status.DelayStart
	return nil
}

func (s *Scrambler) Stop() error {
	return s.client.Close()
}

// Process implements stage.Processor. Until the target service's PMT has
// been seen and patched (via discover, below), every packet is passed
// through unscrambled except for the PAT/PMT packets discover itself
// reassembles sections from; HandlePMT does the one-time patching work
// once discover locates the PMT.
func (s *Scrambler) Process(pkt *tspacket.Packet, slot *ring.Slot) (stage.Status, error) {
	if s.aborted != nil {
		return stage.StatusEnd, s.aborted
	}
	s.pktCounter++

	if !s.pmtSeen {
		if err := s.discover(pkt); err != nil {
			s.aborted = err
			return stage.StatusEnd, err
		}
	}

	if s.pmtSeen && pkt.PID() == s.pmtPID {
		var out tspacket.Packet
		s.packetizer.Next(&out)
		*pkt = out
		// The PMT packetizer is the §4.1 packetizer burst case: the
		// rewritten table must reach downstream promptly rather than
		// wait for a batch to fill.
		slot.Flush = true
		return stage.StatusOK, nil
	}

	if s.pmtSeen {
		s.runScheduler()
	}

	if s.pmtSeen && s.scrambled[pkt.PID()] {
		if status, handled := s.scramblePacket(pkt); handled {
			return status, s.aborted
		}
	}

	if s.pmtSeen && pkt.PID() == tspacket.NullPID {
		if inserted := s.maybeInsertECM(pkt); inserted {
			// ECM emission is the other burst case spec.md §4.1 calls
			// out: the ECM must be delivered promptly, not held for a
			// full batch.
			slot.Flush = true
			return stage.StatusOK, nil
		}
	}

	return stage.StatusOK, nil
}

// HandlePMT processes a freshly-parsed PMT for the service being scrambled,
// per spec.md §4.5.4. discover calls this once it has reassembled and parsed
// the target PMT section off the live PAT/PMT PIDs; tests call it directly
// to exercise the patching logic without driving section reassembly.
func (s *Scrambler) HandlePMT(pmtPID uint16, pmt *psi.PMT) error {
	if s.bitrate == nil || s.bitrate.Bitrate() == 0 {
		return fmt.Errorf("scrambler: PMT patching requires a known TS bitrate")
	}

	pids := map[uint16]bool{}
	for pid := range s.explicitPIDs {
		pids[pid] = true
	}
	if len(pids) == 0 {
		for _, es := range pmt.Streams {
			if isVideoStreamType(es.StreamType) && s.scrambleVideo {
				pids[es.PID] = true
			}
			if isAudioStreamType(es.StreamType) && s.scrambleAudio {
				pids[es.PID] = true
			}
			if isSubtitleStreamType(es.StreamType) && s.scrambleSubtitles {
				pids[es.PID] = true
			}
		}
	}
	if len(pids) == 0 {
		return fmt.Errorf("scrambler: no elementary stream PID selected for scrambling")
	}
	s.scrambled = pids

	ecmPID := uint16(0)
	if s.ecmPIDOverride != nil {
		ecmPID = *s.ecmPIDOverride
	} else {
		used := map[uint16]bool{pmtPID: true}
		for _, es := range pmt.Streams {
			used[es.PID] = true
		}
		for p := pmtPID + 1; p < tspacket.NullPID; p++ {
			if !used[uint16(p)] {
				ecmPID = uint16(p)
				break
			}
		}
	}
	s.ecmPID = ecmPID

	if s.scheme != 0 {
		pmt.AddProgramDescriptor(psi.ScramblingDescriptor(s.scheme))
	}

	caDesc := psi.CADescriptor(uint16(s.superCASID>>16), ecmPID, s.privateData)
	if s.componentLvl {
		for pid := range pids {
			pmt.AddComponentDescriptor(pid, caDesc)
		}
	} else {
		pmt.AddProgramDescriptor(caDesc)
	}

	s.pmt = pmt
	s.pmtPID = pmtPID
	s.packetizer = psi.NewCyclingPacketizer(pmtPID, pmt.Marshal())

	// prime CP 0 synchronously: spec.md §4.5.1 allows synchronous ECM
	// generation only at startup.
	cw0 := deriveControlWord(s.cpNumber)
	s.cp[0].reset(s.cpNumber, cw0)
	s.cipher.Rekey(cw0, byte(s.cpNumber&1))

	cw1 := deriveControlWord(s.cpNumber + 1)
	s.cp[1].reset(s.cpNumber+1, cw1)

	pkts, err := s.client.GenerateECM(context.Background(), s.cpDescriptor(s.cpNumber, cw0, cw1))
	if err != nil {
		return fmt.Errorf("scrambler: initial ECM generation: %w", err)
	}
	s.cp[0].setECM(pkts, nil)

	s.scheduleInitialCounters()
	s.pmtSeen = true
	return nil
}

const patPID = 0x0000

// discover watches the PAT/PMT PIDs until it can call HandlePMT, per
// spec.md §4.5.4's requirement that PMT patching needs a parsed PMT.
// If cfg.PMTPID named the PMT PID directly, PAT parsing is skipped
// entirely and discover only reassembles that PID's PMT section.
func (s *Scrambler) discover(pkt *tspacket.Packet) error {
	if s.pmtPIDOverride != nil {
		if pkt.PID() != *s.pmtPIDOverride {
			return nil
		}
		section, ok := s.acc.Add(pkt)
		if !ok {
			return nil
		}
		pmt, err := psi.ParsePMT(section)
		if err != nil {
			return fmt.Errorf("scrambler: parsing PMT on PID 0x%04X: %w", *s.pmtPIDOverride, err)
		}
		return s.HandlePMT(*s.pmtPIDOverride, pmt)
	}

	if !s.patSeen {
		if pkt.PID() != patPID {
			return nil
		}
		section, ok := s.acc.Add(pkt)
		if !ok {
			return nil
		}
		pat, err := psi.ParsePAT(section)
		if err != nil {
			return fmt.Errorf("scrambler: parsing PAT: %w", err)
		}
		program, err := selectProgram(pat, s.serviceID)
		if err != nil {
			return err
		}
		s.pendingPMTPID = program.PMTPID
		s.patSeen = true
		return nil
	}

	if pkt.PID() != s.pendingPMTPID {
		return nil
	}
	section, ok := s.acc.Add(pkt)
	if !ok {
		return nil
	}
	pmt, err := psi.ParsePMT(section)
	if err != nil {
		return fmt.Errorf("scrambler: parsing PMT on PID 0x%04X: %w", s.pendingPMTPID, err)
	}
	return s.HandlePMT(s.pendingPMTPID, pmt)
}

func selectProgram(pat *psi.PAT, serviceID *uint16) (psi.PATProgram, error) {
	if len(pat.Programs) == 0 {
		return psi.PATProgram{}, fmt.Errorf("scrambler: PAT carries no programs")
	}
	if serviceID == nil {
		return pat.Programs[0], nil
	}
	for _, p := range pat.Programs {
		if p.ProgramNumber == *serviceID {
			return p, nil
		}
	}
	return psi.PATProgram{}, fmt.Errorf("scrambler: service %d not found in PAT", *serviceID)
}

func (s *Scrambler) cpDescriptor(cpNumber uint16, cw, cwNext scrambling.ControlWord) ecmgscs.CPDescriptor {
	return ecmgscs.CPDescriptor{
		CPNumber:       cpNumber,
		CWCurrent:      cw,
		CWNext:         cwNext,
		AccessCriteria: s.accessCrit,
		CPDuration:     s.cpDuration,
	}
}

func deriveControlWord(cpNumber uint16) scrambling.ControlWord {
	var cw scrambling.ControlWord
	cw[0] = byte(cpNumber >> 8)
	cw[1] = byte(cpNumber)
	for i := 2; i < scrambling.ControlWordSize; i++ {
		cw[i] = byte(cpNumber) ^ byte(i)
	}
	return cw
}

func (s *Scrambler) packetsPerDuration(d time.Duration) int64 {
	bps := s.bitrate.Bitrate()
	if bps == 0 {
		return 0
	}
	bits := float64(bps) * d.Seconds()
	return int64(bits / (188 * 8))
}

func (s *Scrambler) scheduleInitialCounters() {
	cpPkts := s.packetsPerDuration(s.cpDuration)
	delayPkts := s.packetsPerDuration(s.delayStart)
	s.pktChangeCW = s.pktCounter + cpPkts
	s.pktChangeECM = s.pktChangeCW + delayPkts
	if s.ecmBitrate > 0 {
		s.pktInsertECM = s.pktCounter + s.packetsPerDuration(time.Duration(float64(time.Second)*float64(188*8)/float64(s.ecmBitrate)))
	}
}

// runScheduler advances the CW/ECM transition counters and the ECM
// insertion cursor, implementing spec.md §4.5.2's scheduler and §4.5.3's
// degraded-mode rules.
func (s *Scrambler) runScheduler() {
	if s.pktCounter >= s.pktChangeCW {
		s.tryChangeCW()
	}
	if s.pktCounter >= s.pktChangeECM {
		s.tryChangeECM()
	}
}

func (s *Scrambler) tryChangeCW() {
	next := &s.cp[s.currentCW^1]
	if !next.ready() {
		if !s.degraded {
			s.degraded = true
			s.postponedKind = "cw"
			s.log.Warn("entering degraded mode", "reason", "next control word not ready")
		}
		return
	}
	if s.degraded && s.postponedKind == "cw" {
		s.degraded = false
		s.log.Info("exiting from degraded mode")
	}
	s.currentCW ^= 1
	s.cipher.Rekey(next.cw, byte(next.cpNumber&1))
	s.pktChangeCW = s.pktCounter + s.packetsPerDuration(s.cpDuration)

	if s.currentECM == s.currentCW {
		s.startGeneratingNextCP()
	}
}

func (s *Scrambler) tryChangeECM() {
	next := &s.cp[s.currentECM^1]
	if !next.ready() {
		if !s.degraded {
			s.degraded = true
			s.postponedKind = "ecm"
			s.log.Warn("entering degraded mode", "reason", "next ECM not ready")
		}
		return
	}
	if s.degraded && s.postponedKind == "ecm" {
		s.degraded = false
		s.log.Info("exiting from degraded mode")
	}
	s.currentECM ^= 1
	s.pktChangeECM = s.pktChangeCW + s.packetsPerDuration(s.delayStart)

	if s.currentECM == s.currentCW {
		s.startGeneratingNextCP()
	}
}

func (s *Scrambler) startGeneratingNextCP() {
	s.cpNumber++
	genSlot := &s.cp[s.cpNumber&1]
	cw := deriveControlWord(s.cpNumber)
	cwNext := deriveControlWord(s.cpNumber + 1)
	genSlot.reset(s.cpNumber, cw)

	desc := s.cpDescriptor(s.cpNumber, cw, cwNext)
	if s.synchronousOnly {
		pkts, err := s.client.GenerateECM(context.Background(), desc)
		genSlot.setECM(pkts, err)
		if err != nil {
			s.log.Error("synchronous ECM generation failed", "cp", s.cpNumber, "error", err)
		}
		return
	}

	if err := s.client.SubmitECM(context.Background(), desc, func(pkts [][]byte, err error) {
		genSlot.setECM(pkts, err)
		if err != nil {
			s.log.Error("asynchronous ECM generation failed", "cp", s.cpNumber, "error", err)
		}
	}); err != nil {
		s.log.Error("ECM submission failed", "cp", s.cpNumber, "error", err)
	}
}

// scramblePacket applies the cipher (or records an already-scrambled PID
// and passes it through per --ignore-scrambled) to one eligible packet,
// honouring partial_scrambling's countdown.
func (s *Scrambler) scramblePacket(pkt *tspacket.Packet) (stage.Status, bool) {
	if pkt.IsScrambled() {
		if s.ignoreScrambled {
			if !s.alreadyScrambledLogged[pkt.PID()] {
				s.alreadyScrambledLogged[pkt.PID()] = true
				s.log.Warn("packet already scrambled, ignoring", "pid", pkt.PID())
			}
			return stage.StatusOK, true
		}
		s.aborted = fmt.Errorf("scrambler: packet on PID 0x%04X already scrambled", pkt.PID())
		return stage.StatusEnd, true
	}

	if s.partialCountdown > 0 {
		s.partialCountdown--
		return stage.StatusOK, false
	}
	s.partialCountdown = s.partialK - 1

	if err := s.cipher.Scramble(pkt.Payload()); err != nil {
		s.aborted = fmt.Errorf("scrambler: %w", err)
		return stage.StatusEnd, true
	}
	pkt.SetScramblingControl(1 + byte(s.cipher.Parity()))
	return stage.StatusOK, true
}

func (s *Scrambler) maybeInsertECM(pkt *tspacket.Packet) bool {
	if s.pktCounter < s.pktInsertECM {
		return false
	}
	broadcast := &s.cp[s.currentECM]
	data, ok := broadcast.nextECMPacket()
	if !ok {
		return false
	}
	if err := pkt.SetBytes(data); err != nil {
		s.log.Error("malformed ECM packet from ECMG", "error", err)
		return false
	}
	pkt.SetPID(s.ecmPID)
	pkt.SetCC(s.ecmCC)
	s.ecmCC = (s.ecmCC + 1) & 0x0F

	s.pktInsertECM = s.pktCounter + s.packetsPerDuration(time.Duration(float64(time.Second)*float64(188*8)/float64(s.ecmBitrate)))
	return true
}

func isVideoStreamType(t uint8) bool {
	switch t {
	case 0x01, 0x02, 0x1B, 0x24:
		return true
	}
	return false
}

func isAudioStreamType(t uint8) bool {
	switch t {
	case 0x03, 0x04, 0x0F, 0x11:
		return true
	}
	return false
}

func isSubtitleStreamType(t uint8) bool {
	return t == 0x06
}
