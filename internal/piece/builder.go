package piece

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"golang.org/x/sync/semaphore"

	"mason/internal/label"
	"mason/internal/macro"
)

// BuildFileName is the build description file evaluated per package.
const BuildFileName = "BUILD.mason"

// DefaultWorkspaceName is used when no workspace name is configured.
const DefaultWorkspaceName = "main"

// Globber expands glob patterns relative to the package directory. The
// interpreter calls it during evaluation; pieces never glob on their
// own. Implementations live with the evaluation engine.
type Globber interface {
	Glob(ctx context.Context, includes, excludes []string, allowEmpty bool) ([]string, error)
}

// Definer is the mutation surface an interpreter drives while one
// evaluation is active. Both builder shapes implement it; the interface
// is sealed.
type Definer interface {
	// PieceIdentity returns the identity of the piece under construction.
	PieceIdentity() Identity
	// Metadata returns the package metadata visible to the evaluation.
	Metadata() *Metadata
	// AddTarget validates spec and inserts a new target.
	AddTarget(spec TargetSpec) (*Target, error)
	// RecordMacro registers an evaluated macro instance declared by this
	// evaluation.
	RecordMacro(inst *macro.Instance) error
	// SetLoads replaces the list of .mac labels loaded so far.
	SetLoads(loads []label.Label)
	// AddSteps adds to the interpreter's computation step counter.
	AddSteps(n uint64)
	// BuildPartial returns a read-only view over the committed state.
	BuildPartial() *Snapshot
	// CPUPermits returns the evaluation's CPU admission semaphore, or
	// nil when unthrottled.
	CPUPermits() *semaphore.Weighted
	// GeneratorName resolves provenance attribution for a declaration
	// site, when the builder was configured with a generator map.
	GeneratorName(loc Location) (string, bool)
	// Globber returns the configured glob collaborator, or nil.
	Globber() Globber

	sealedDefiner()
}

// Config configures a top-level builder.
type Config struct {
	Pkg            label.PackageID
	BuildFileLabel label.Label // synthesized as <pkg>:BUILD.mason when zero
	WorkspaceName  string      // DefaultWorkspaceName when empty

	RepoMapping             *label.RepoMapping
	MainRepoMapping         *label.RepoMapping
	AssociatedModuleName    string
	AssociatedModuleVersion string
	Visibility              VisibilityPolicy

	// SuccinctTargetNotFoundErrors disables the suggestion machinery on
	// target lookup misses.
	SuccinctTargetNotFoundErrors bool

	// CPUPermits throttles CPU-heavy interpreter work. Carried opaquely.
	CPUPermits *semaphore.Weighted
	// GeneratorNames attributes provenance to rule targets by their
	// declaration site.
	GeneratorNames map[Location]string
	// Globber is the filesystem collaborator handed to the interpreter.
	Globber Globber

	// DisableNameConflictChecks lets duplicate names replace instead of
	// fail. Only for replaying input that already passed the checks.
	DisableNameConflictChecks bool
	// OmitMacroInstances keeps recorded macros out of the finished
	// piece; duplicate detection still sees them.
	OmitMacroInstances bool
}

// MacroConfig configures a macro piece builder.
type MacroConfig struct {
	// Evaluated is the macro instance being expanded. Required.
	Evaluated *macro.Instance
	// BuildFile is the finalized top-level sibling piece. Required:
	// metadata and declarations are read through it, never duplicated.
	BuildFile *ForBuildFile

	CPUPermits *semaphore.Weighted
	// GeneratorNames attributes provenance to rule targets by their
	// declaration site.
	GeneratorNames map[Location]string
	Globber        Globber

	DisableNameConflictChecks bool
	OmitMacroInstances        bool
}

// builderCore is the accumulation state shared by both builder shapes.
// Single writer; not safe for concurrent use.
type builderCore struct {
	id         Identity
	meta       *Metadata
	rec        *targetRecorder
	macros     []*macro.Instance
	macroIDs   map[string]*macro.Instance
	loads      []label.Label
	steps      uint64
	permits    *semaphore.Weighted
	genNames   map[Location]string
	globber    Globber
	omitMacros bool
	finalized  bool
}

func newBuilderCore(id Identity, meta *Metadata, rec *targetRecorder) builderCore {
	return builderCore{
		id:       id,
		meta:     meta,
		rec:      rec,
		macroIDs: make(map[string]*macro.Instance),
	}
}

func (b *builderCore) sealedDefiner() {}

func (b *builderCore) PieceIdentity() Identity { return b.id }

func (b *builderCore) Metadata() *Metadata { return b.meta }

func (b *builderCore) CPUPermits() *semaphore.Weighted { return b.permits }

func (b *builderCore) Globber() Globber { return b.globber }

func (b *builderCore) GeneratorName(loc Location) (string, bool) {
	name, ok := b.genNames[loc]
	return name, ok
}

func (b *builderCore) mustAccumulate(op string) {
	if b.finalized {
		panic(fmt.Sprintf("piece: %s after FinishBuild on %s", op, b.id))
	}
}

// AddTarget validates spec, attributes provenance for rule targets, and
// inserts the target. Duplicate names, including names already taken by
// a recorded macro, fail the insertion when conflict checking is on.
func (b *builderCore) AddTarget(spec TargetSpec) (*Target, error) {
	b.mustAccumulate("AddTarget")
	if err := label.ValidateTargetName(spec.Name); err != nil {
		return nil, err
	}
	if spec.Kind == KindRule && spec.RuleClass == "" {
		return nil, fmt.Errorf("target %q: rule targets need a rule class", spec.Name)
	}
	if spec.Kind != KindRule && spec.RuleClass != "" {
		return nil, fmt.Errorf("target %q: rule class %q on a %s target", spec.Name, spec.RuleClass, spec.Kind)
	}
	t := &Target{
		name:      spec.Name,
		pkg:       b.id.Pkg,
		kind:      spec.Kind,
		ruleClass: spec.RuleClass,
		location:  spec.Location,
	}
	if t.kind == KindRule {
		if gen, ok := b.genNames[spec.Location]; ok {
			t.generatorName = gen
		}
	}
	if b.rec.checkConflicts {
		if _, clash := b.macroIDs[spec.Name]; clash {
			return nil, &DuplicateTargetError{
				Piece:    b.id,
				Name:     spec.Name,
				Existing: "macro",
				Added:    describeTarget(t),
			}
		}
	}
	if err := b.rec.add(t, b.id); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordMacro registers inst under its instance id. Duplicate ids and
// collisions with existing target names fail.
func (b *builderCore) RecordMacro(inst *macro.Instance) error {
	b.mustAccumulate("RecordMacro")
	if inst == nil {
		return errors.New("piece: nil macro instance")
	}
	id := inst.ID()
	if _, dup := b.macroIDs[id]; dup {
		return fmt.Errorf("macro %q: duplicate instance id in %s", id, b.id.CanonicalName())
	}
	if b.rec.checkConflicts {
		if prev, taken := b.rec.find(id); taken {
			return &DuplicateTargetError{
				Piece:    b.id,
				Name:     id,
				Existing: describeTarget(prev),
				Added:    "macro",
			}
		}
	}
	if b.omitMacros {
		b.macroIDs[id] = nil
	} else {
		b.macroIDs[id] = inst
		b.macros = append(b.macros, inst)
	}
	return nil
}

func (b *builderCore) SetLoads(loads []label.Label) {
	b.mustAccumulate("SetLoads")
	b.loads = slices.Clone(loads)
}

func (b *builderCore) AddSteps(n uint64) {
	b.mustAccumulate("AddSteps")
	b.steps += n
}

// BuildPartial returns a live read-only view: later mutations through
// the builder are visible, writes are impossible. Panics once the
// builder finished.
func (b *builderCore) BuildPartial() *Snapshot {
	b.mustAccumulate("BuildPartial")
	return &Snapshot{core: b}
}

// finalize freezes the accumulated state into a pieceCore. Exactly one
// call; the second panics.
func (b *builderCore) finalize() pieceCore {
	if b.finalized {
		panic(fmt.Sprintf("piece: FinishBuild called twice on %s", b.id))
	}
	b.finalized = true
	core := pieceCore{
		id:     b.id,
		names:  b.rec.sortedNames(),
		byName: b.rec.byName,
		loads:  b.loads,
		steps:  b.steps,
	}
	if b.omitMacros {
		core.macroIDs = map[string]*macro.Instance{}
	} else {
		core.macros = b.macros
		core.macroIDs = b.macroIDs
	}
	return core
}

// ForBuildFileBuilder accumulates the evaluation of one BUILD.mason
// file into a *ForBuildFile.
type ForBuildFileBuilder struct {
	builderCore
	decls Declarations
}

// NewForBuildFileBuilder derives the piece identity and frozen metadata
// from cfg and returns an empty builder in the accumulating state.
func NewForBuildFileBuilder(cfg Config) *ForBuildFileBuilder {
	bfl := cfg.BuildFileLabel
	if bfl.IsZero() {
		bfl = label.Label{Pkg: cfg.Pkg, Name: BuildFileName}
	}
	workspace := cfg.WorkspaceName
	if workspace == "" {
		workspace = DefaultWorkspaceName
	}
	meta := &Metadata{
		pkg:                     cfg.Pkg,
		buildFileLabel:          bfl,
		repoMapping:             cfg.RepoMapping,
		mainRepoMapping:         cfg.MainRepoMapping,
		associatedModuleName:    cfg.AssociatedModuleName,
		associatedModuleVersion: cfg.AssociatedModuleVersion,
		visibility:              cfg.Visibility,
		succinctTargetNotFound:  cfg.SuccinctTargetNotFoundErrors,
	}
	rec := newTargetRecorder(!cfg.DisableNameConflictChecks, nil)
	b := &ForBuildFileBuilder{
		builderCore: newBuilderCore(NewIdentity(cfg.Pkg, bfl), meta, rec),
		decls:       Declarations{workspaceName: workspace},
	}
	b.permits = cfg.CPUPermits
	b.genNames = cfg.GeneratorNames
	b.globber = cfg.Globber
	b.omitMacros = cfg.OmitMacroInstances
	return b
}

// FinishBuild freezes the builder into an immutable *ForBuildFile and
// assigns every target's owner. At most one call.
func (b *ForBuildFileBuilder) FinishBuild() (*ForBuildFile, error) {
	core := b.finalize()
	decls := b.decls
	decls.directLoads = core.loads
	p := &ForBuildFile{
		pieceCore: core,
		meta:      b.meta,
		decls:     &decls,
	}
	for _, t := range p.byName {
		t.owner = p
	}
	return p, nil
}

// ForMacroBuilder accumulates the expansion of one macro instance into
// a *ForMacro.
type ForMacroBuilder struct {
	builderCore
	evaluated *macro.Instance
	buildFile *ForBuildFile
}

// NewForMacroBuilder builds against a finalized top-level sibling.
// Panics when the evaluated instance or the sibling is missing: macro
// expansion without a finished build file piece is a sequencing bug in
// the caller, not input to validate.
func NewForMacroBuilder(cfg MacroConfig) *ForMacroBuilder {
	if cfg.Evaluated == nil {
		panic("piece: NewForMacroBuilder without an evaluated macro instance")
	}
	if cfg.BuildFile == nil {
		panic("piece: NewForMacroBuilder without a finalized build file piece")
	}
	id := NewMacroIdentity(
		cfg.BuildFile.id.Pkg,
		cfg.Evaluated.Class.DefiningLabel,
		cfg.Evaluated.Class.Name,
		cfg.Evaluated.ID(),
	)
	rec := newTargetRecorder(!cfg.DisableNameConflictChecks, cfg.Evaluated)
	b := &ForMacroBuilder{
		builderCore: newBuilderCore(id, cfg.BuildFile.meta, rec),
		evaluated:   cfg.Evaluated,
		buildFile:   cfg.BuildFile,
	}
	b.permits = cfg.CPUPermits
	b.genNames = cfg.GeneratorNames
	b.globber = cfg.Globber
	b.omitMacros = cfg.OmitMacroInstances
	return b
}

// FinishBuild freezes the builder into an immutable *ForMacro, copying
// the recorder's violation set into the piece. At most one call.
func (b *ForMacroBuilder) FinishBuild() (*ForMacro, error) {
	violations := b.rec.violationSet()
	core := b.finalize()
	p := &ForMacro{
		pieceCore:  core,
		evaluated:  b.evaluated,
		buildFile:  b.buildFile,
		violations: violations,
	}
	for _, t := range p.byName {
		t.owner = p
	}
	return p, nil
}

// Snapshot is a read-only window over a builder's committed state. It
// is not a Piece: consumers that need one wait for FinishBuild. Sorted
// orders are computed per call, so a snapshot taken early also shows
// targets added after it.
type Snapshot struct {
	core *builderCore
}

// Identity returns the identity of the piece under construction.
func (s *Snapshot) Identity() Identity { return s.core.id }

// NumTargets returns the committed target count.
func (s *Snapshot) NumTargets() int { return s.core.rec.len() }

// TargetNames returns a sorted copy of the committed target names.
func (s *Snapshot) TargetNames() []string { return s.core.rec.sortedNames() }

// Target looks up a committed target. No miss diagnostics: those belong
// to finalized pieces.
func (s *Snapshot) Target(name string) (*Target, bool) {
	return s.core.rec.find(name)
}

// Targets iterates committed targets in name-sorted order.
func (s *Snapshot) Targets() iter.Seq2[string, *Target] {
	return func(yield func(string, *Target) bool) {
		for _, name := range s.core.rec.sortedNames() {
			t, _ := s.core.rec.find(name)
			if !yield(name, t) {
				return
			}
		}
	}
}

// Macros returns the macro instances recorded so far.
func (s *Snapshot) Macros() []*macro.Instance {
	return slices.Clone(s.core.macros)
}

// Loads returns the load list committed so far.
func (s *Snapshot) Loads() []label.Label {
	return slices.Clone(s.core.loads)
}

// Steps returns the running computation step count.
func (s *Snapshot) Steps() uint64 { return s.core.steps }
