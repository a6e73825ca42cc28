package cache

import (
	"fmt"

	"mason/internal/label"
	"mason/internal/macro"
	"mason/internal/piece"
)

// pieceToPayload flattens a finalized piece for serialisation.
func pieceToPayload(p piece.Piece) *DiskPayload {
	id := p.Identity()
	meta := p.Metadata()

	payload := &DiskPayload{
		Schema:        diskCacheSchemaVersion,
		Package:       id.Pkg.CanonicalForm(),
		DefiningLabel: id.DefiningLabel.CanonicalForm(),
		WorkspaceName: p.Declarations().WorkspaceName(),
		ModuleName:    meta.AssociatedModuleName(),
		ModuleVersion: meta.AssociatedModuleVersion(),
		Visibility:    uint8(meta.Visibility()),
		Succinct:      meta.SuccinctTargetNotFoundErrors(),
		Steps:         p.ComputationSteps(),
	}
	payload.RepoOwner, payload.RepoEntries = flattenRepoMapping(meta.RepoMapping())
	payload.MainRepoOwner, payload.MainRepoEntries = flattenRepoMapping(meta.MainRepoMapping())

	if m, isMacro := p.(*piece.ForMacro); isMacro {
		inst := m.EvaluatedMacro()
		payload.DefiningSymbol = inst.Class.Name
		payload.MacroName = inst.Name
		payload.MacroDepth = inst.SameNameDepth
		payload.SiblingLabel = meta.BuildFileLabel().CanonicalForm()
		payload.Violations = m.NamespaceViolations()
	}

	for _, lbl := range p.Loads() {
		payload.Loads = append(payload.Loads, lbl.CanonicalForm())
	}
	for _, tgt := range p.Targets() {
		loc := tgt.Location()
		payload.Targets = append(payload.Targets, targetRecord{
			Name:      tgt.Name(),
			Kind:      uint8(tgt.Kind()),
			RuleClass: tgt.RuleClass(),
			File:      loc.File,
			Line:      loc.Line,
			Col:       loc.Col,
			Generator: tgt.GeneratorName(),
		})
	}
	for _, inst := range p.Macros() {
		payload.Macros = append(payload.Macros, macroRecord{
			Class:    inst.Class.Name,
			ClassDef: inst.Class.DefiningLabel.CanonicalForm(),
			Name:     inst.Name,
			Depth:    inst.SameNameDepth,
		})
	}
	return payload
}

// payloadToBuildFilePiece rebuilds a top-level piece through the builder
// API, re-running name validation and conflict checks on the way.
func payloadToBuildFilePiece(payload *DiskPayload) (*piece.ForBuildFile, error) {
	pkg, err := label.ParsePackageID(payload.Package)
	if err != nil {
		return nil, err
	}
	bfl, err := label.ParseLabel(payload.DefiningLabel)
	if err != nil {
		return nil, err
	}

	b := piece.NewForBuildFileBuilder(piece.Config{
		Pkg:                          pkg,
		BuildFileLabel:               bfl,
		WorkspaceName:                payload.WorkspaceName,
		RepoMapping:                  rebuildRepoMapping(payload.RepoOwner, payload.RepoEntries),
		MainRepoMapping:              rebuildRepoMapping(payload.MainRepoOwner, payload.MainRepoEntries),
		AssociatedModuleName:         payload.ModuleName,
		AssociatedModuleVersion:      payload.ModuleVersion,
		Visibility:                   piece.VisibilityPolicy(payload.Visibility),
		SuccinctTargetNotFoundErrors: payload.Succinct,
		GeneratorNames:               generatorMap(payload.Targets),
	})
	if err := replayInto(b, payload); err != nil {
		return nil, err
	}
	return b.FinishBuild()
}

// payloadToMacroPiece rebuilds a macro piece against an already
// reconstructed sibling.
func payloadToMacroPiece(payload *DiskPayload, sibling *piece.ForBuildFile) (*piece.ForMacro, error) {
	clsDef, err := label.ParseLabel(payload.DefiningLabel)
	if err != nil {
		return nil, err
	}
	cls, err := macro.NewClass(payload.DefiningSymbol, clsDef)
	if err != nil {
		return nil, err
	}
	inst, err := macro.NewInstance(cls, payload.MacroName, payload.MacroDepth)
	if err != nil {
		return nil, err
	}
	b := piece.NewForMacroBuilder(piece.MacroConfig{
		Evaluated:      inst,
		BuildFile:      sibling,
		GeneratorNames: generatorMap(payload.Targets),
	})
	if err := replayInto(b, payload); err != nil {
		return nil, err
	}
	return b.FinishBuild()
}

// replayInto drives the shared mutation surface with the payload's
// records.
func replayInto(b piece.Definer, payload *DiskPayload) error {
	for _, rec := range payload.Targets {
		if rec.Kind > uint8(piece.KindPackageGroup) {
			return fmt.Errorf("target %q: unknown kind %d", rec.Name, rec.Kind)
		}
		if _, err := b.AddTarget(piece.TargetSpec{
			Name:      rec.Name,
			Kind:      piece.TargetKind(rec.Kind),
			RuleClass: rec.RuleClass,
			Location:  piece.Location{File: rec.File, Line: rec.Line, Col: rec.Col},
		}); err != nil {
			return err
		}
	}
	for _, rec := range payload.Macros {
		clsDef, err := label.ParseLabel(rec.ClassDef)
		if err != nil {
			return err
		}
		cls, err := macro.NewClass(rec.Class, clsDef)
		if err != nil {
			return err
		}
		inst, err := macro.NewInstance(cls, rec.Name, rec.Depth)
		if err != nil {
			return err
		}
		if err := b.RecordMacro(inst); err != nil {
			return err
		}
	}
	if len(payload.Loads) > 0 {
		loads := make([]label.Label, 0, len(payload.Loads))
		for _, s := range payload.Loads {
			lbl, err := label.ParseLabel(s)
			if err != nil {
				return err
			}
			loads = append(loads, lbl)
		}
		b.SetLoads(loads)
	}
	b.AddSteps(payload.Steps)
	return nil
}

func flattenRepoMapping(m *label.RepoMapping) (string, map[string]string) {
	if m == nil {
		return "", nil
	}
	var entries map[string]string
	if m.Len() > 0 {
		entries = make(map[string]string, m.Len())
		for _, apparent := range m.ApparentNames() {
			canonical, _ := m.Get(apparent)
			entries[apparent] = string(canonical)
		}
	}
	return string(m.Owner()), entries
}

func rebuildRepoMapping(owner string, entries map[string]string) *label.RepoMapping {
	if owner == "" && len(entries) == 0 {
		return nil
	}
	mapped := make(map[string]label.RepoName, len(entries))
	for apparent, canonical := range entries {
		mapped[apparent] = label.RepoName(canonical)
	}
	return label.NewRepoMapping(label.RepoName(owner), mapped)
}

func generatorMap(records []targetRecord) map[piece.Location]string {
	var gen map[piece.Location]string
	for _, rec := range records {
		if rec.Generator == "" {
			continue
		}
		if gen == nil {
			gen = make(map[piece.Location]string)
		}
		gen[piece.Location{File: rec.File, Line: rec.Line, Col: rec.Col}] = rec.Generator
	}
	return gen
}
