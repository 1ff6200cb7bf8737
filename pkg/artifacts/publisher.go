package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

type Type string

const (
	TypeSDL        Type = "sdl"
	TypeSupergraph Type = "supergraph"
	TypeMetadata   Type = "metadata"
	TypeServices   Type = "services"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSDL, TypeSupergraph, TypeMetadata, TypeServices:
		return true
	default:
		return false
	}
}

type Service struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	SDL  string `json:"sdl"`
}

type ContractSnapshot struct {
	SDL           string
	SupergraphSDL string
}

// Snapshot is everything served for a single schema version of a target.
type Snapshot struct {
	TargetID      uuid.UUID
	VersionID     uuid.UUID
	VersionNumber int64
	SDL           string
	SupergraphSDL string
	Metadata      json.RawMessage
	Services      []Service
	Contracts     map[string]ContractSnapshot
}

type Document struct {
	Hash string
	Body string
}

// pointer is the value of a target's latest key.
type pointer struct {
	Number  int64     `json:"number"`
	Version uuid.UUID `json:"version"`
}

// Publisher lays out artifacts in a Store. Schema artifacts of a version are staged under their
// own prefix and become visible when the target pointer is switched to that version.
type Publisher struct {
	store Store
	log   logr.Logger
}

func NewPublisher(store Store, log logr.Logger) *Publisher {
	return &Publisher{store: store, log: log}
}

func latestKey(targetID uuid.UUID) string {
	return fmt.Sprintf("%s/latest", targetID)
}

func versionKey(targetID uuid.UUID, versionID string, artifactType Type) string {
	return fmt.Sprintf("%s/versions/%s/%s", targetID, versionID, artifactType)
}

func contractKey(targetID uuid.UUID, versionID string, contractName string, artifactType Type) string {
	return fmt.Sprintf("%s/versions/%s/contracts/%s/%s", targetID, versionID, contractName, artifactType)
}

func documentKey(targetID uuid.UUID, appName string, appVersion string, hash string) string {
	return fmt.Sprintf("%s/apps/%s/%s/%s", targetID, appName, appVersion, hash)
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, "/"+string(TypeMetadata)), strings.HasSuffix(key, "/"+string(TypeServices)):
		return "application/json"
	default:
		return "text/plain"
	}
}

// PublishSchema writes the snapshot and then points the target at it. A target already pointing
// at a newer version keeps its pointer.
func (p *Publisher) PublishSchema(ctx context.Context, snapshot *Snapshot) error {
	version := snapshot.VersionID.String()

	metadata := snapshot.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("null")
	}
	services, err := json.Marshal(snapshot.Services)
	if err != nil {
		return fmt.Errorf("error marshalling services artifact: %w", err)
	}

	staged := map[string][]byte{
		versionKey(snapshot.TargetID, version, TypeSDL):      []byte(snapshot.SDL),
		versionKey(snapshot.TargetID, version, TypeMetadata): metadata,
		versionKey(snapshot.TargetID, version, TypeServices): services,
	}
	if snapshot.SupergraphSDL != "" {
		staged[versionKey(snapshot.TargetID, version, TypeSupergraph)] = []byte(snapshot.SupergraphSDL)
	}
	for name, contract := range snapshot.Contracts {
		staged[contractKey(snapshot.TargetID, version, name, TypeSDL)] = []byte(contract.SDL)
		if contract.SupergraphSDL != "" {
			staged[contractKey(snapshot.TargetID, version, name, TypeSupergraph)] = []byte(contract.SupergraphSDL)
		}
	}

	for key, value := range staged {
		if err := p.store.Put(ctx, key, value); err != nil {
			return fmt.Errorf("error staging artifact %s: %w", key, err)
		}
	}

	current, err := p.latestPointer(ctx, snapshot.TargetID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if current != nil && current.Number > snapshot.VersionNumber {
		p.log.Info("keeping newer schema artifacts", "target", snapshot.TargetID, "version", version, "current", current.Version)
		return nil
	}

	next, err := json.Marshal(pointer{Number: snapshot.VersionNumber, Version: snapshot.VersionID})
	if err != nil {
		return fmt.Errorf("error marshalling artifact pointer: %w", err)
	}
	if err := p.store.Put(ctx, latestKey(snapshot.TargetID), next); err != nil {
		return fmt.Errorf("error switching artifacts of target %s to version %s: %w", snapshot.TargetID, version, err)
	}

	p.log.Info("published schema artifacts", "target", snapshot.TargetID, "version", version, "artifacts", len(staged))
	return nil
}

func (p *Publisher) latestPointer(ctx context.Context, targetID uuid.UUID) (*pointer, error) {
	data, err := p.store.Get(ctx, latestKey(targetID))
	if err != nil {
		return nil, err
	}
	current := &pointer{}
	if err := json.Unmarshal(data, current); err != nil {
		return nil, fmt.Errorf("error parsing artifact pointer of target %s: %w", targetID, err)
	}
	return current, nil
}

func (p *Publisher) latestVersion(ctx context.Context, targetID uuid.UUID) (string, error) {
	current, err := p.latestPointer(ctx, targetID)
	if err != nil {
		return "", err
	}
	return current.Version.String(), nil
}

// Artifact reads an artifact of the version the target currently points at.
func (p *Publisher) Artifact(ctx context.Context, targetID uuid.UUID, artifactType Type) ([]byte, error) {
	version, err := p.latestVersion(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return p.store.Get(ctx, versionKey(targetID, version, artifactType))
}

func (p *Publisher) ContractArtifact(ctx context.Context, targetID uuid.UUID, contractName string, artifactType Type) ([]byte, error) {
	version, err := p.latestVersion(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return p.store.Get(ctx, contractKey(targetID, version, contractName, artifactType))
}

// LatestVersionID returns the schema version the artifacts of the target come from.
func (p *Publisher) LatestVersionID(ctx context.Context, targetID uuid.UUID) (uuid.UUID, error) {
	current, err := p.latestPointer(ctx, targetID)
	if err != nil {
		return uuid.Nil, err
	}
	return current.Version, nil
}

func (p *Publisher) PublishDocuments(ctx context.Context, targetID uuid.UUID, appName string, appVersion string, documents []Document) error {
	for _, document := range documents {
		key := documentKey(targetID, appName, appVersion, document.Hash)
		if err := p.store.Put(ctx, key, []byte(document.Body)); err != nil {
			return fmt.Errorf("error publishing document %s: %w", key, err)
		}
	}
	p.log.V(1).Info("published app deployment documents", "target", targetID, "app", appName, "version", appVersion, "documents", len(documents))
	return nil
}

func (p *Publisher) RetireDocuments(ctx context.Context, targetID uuid.UUID, appName string, appVersion string, hashes []string) error {
	for _, hash := range hashes {
		key := documentKey(targetID, appName, appVersion, hash)
		if err := p.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("error removing document %s: %w", key, err)
		}
	}
	p.log.V(1).Info("removed app deployment documents", "target", targetID, "app", appName, "version", appVersion, "documents", len(hashes))
	return nil
}

func (p *Publisher) Document(ctx context.Context, targetID uuid.UUID, appName string, appVersion string, hash string) ([]byte, error) {
	return p.store.Get(ctx, documentKey(targetID, appName, appVersion, hash))
}
