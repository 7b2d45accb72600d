package emit

import (
	"fmt"
	"os"
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// CompiledArtifact is the manifest pkg/compiler hands to the backend
// runner: a path to the emitted artifact, a master string, a free-form
// argument map, and a profiling flag. It is serialized alongside the
// emitted source file so a runner (or a human) can recover how an
// artifact was produced without re-running the compiler. The same
// apimachinery + sigs.k8s.io/yaml pairing backs the rest of this module's
// persisted state (the Markov snapshot, the cache catalogue).
type CompiledArtifact struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              ArtifactSpec   `json:"spec"`
	Status            ArtifactStatus `json:"status,omitempty"`
}

// ArtifactSpec is the compiled job's description.
type ArtifactSpec struct {
	Backend        string            `json:"backend"`
	Master         string            `json:"master,omitempty"`
	OutDir         string            `json:"outDir"`
	SourcePath     string            `json:"sourcePath"`
	Params         map[string]string `json:"params,omitempty"`
	Profiling      bool              `json:"profiling"`
	AdditionalJars []string          `json:"additionalJars,omitempty"`
}

// ArtifactStatus is filled in by the backend runner (an external
// collaborator) after submission; the compiler itself only ever writes a
// zero-value Status.
type ArtifactStatus struct {
	Phase      string      `json:"phase,omitempty"`
	StartedAt  metav1.Time `json:"startedAt,omitempty"`
	FinishedAt metav1.Time `json:"finishedAt,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// NewArtifact constructs a manifest for a just-completed emission pass.
func NewArtifact(name string, spec ArtifactSpec) *CompiledArtifact {
	return &CompiledArtifact{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       spec,
	}
}

// ToYAML serializes the artifact manifest, stamping Kind and APIVersion
// so the output is self-describing.
func (a *CompiledArtifact) ToYAML() ([]byte, error) {
	a.APIVersion = "piglet.dev/v1"
	a.Kind = "CompiledArtifact"

	data, err := yaml.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal compiled artifact: %w", err)
	}
	return data, nil
}

// FromYAML deserializes a manifest, rejecting documents of any other Kind.
func FromYAML(data []byte) (*CompiledArtifact, error) {
	var a CompiledArtifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal compiled artifact: %w", err)
	}
	if a.Kind != "" && a.Kind != "CompiledArtifact" {
		return nil, fmt.Errorf("invalid kind: %s (expected CompiledArtifact)", a.Kind)
	}
	return &a, nil
}

// WriteManifest writes both the rendered source and its manifest under
// outDir, atomically for the manifest (temp-and-rename, matching
// pkg/materialize.Catalogue.Save and pkg/markov.Model.Save), plainly for
// the source file (it is the primary build output, not persisted state
// that must survive a crash mid-write).
func (a *CompiledArtifact) WriteManifest(outDir, source string) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create outdir: %w", err)
	}
	sourcePath := filepath.Join(outDir, a.Name+".scala")
	if err := os.WriteFile(sourcePath, []byte(source), 0644); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	a.Spec.SourcePath = sourcePath

	data, err := a.ToYAML()
	if err != nil {
		return "", err
	}
	manifestPath := filepath.Join(outDir, a.Name+".manifest.yaml")
	tmp, err := os.CreateTemp(outDir, ".manifest-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write manifest temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close manifest temp file: %w", err)
	}
	if err := os.Rename(tmpName, manifestPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename manifest temp file: %w", err)
	}
	return sourcePath, nil
}
