package documents

import (
	"context"
	"sort"
	"sync"
	"time"

	"esign-backend/internal/regions"
	"esign-backend/internal/signing"
)

// MemoryRepo is an in-memory Repo. A single lock makes every operation atomic.
type MemoryRepo struct {
	mu      sync.Mutex
	docs    map[string]Document
	regions map[string][]regions.Region
	sigs    map[string]signing.Signature // signature id -> record
	now     func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:    make(map[string]Document),
		regions: make(map[string][]regions.Region),
		sigs:    make(map[string]signing.Signature),
		now:     time.Now,
	}
}

func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepo) GetDetail(ctx context.Context, documentID string) (Detail, error) {
	if err := ctx.Err(); err != nil {
		return Detail{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detailLocked(documentID)
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Detail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var owned []Document
	for _, d := range r.docs {
		if d.OwnerID == ownerID {
			owned = append(owned, d)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	if offset >= len(owned) {
		return []Detail{}, nil
	}
	owned = owned[offset:]
	if limit > 0 && limit < len(owned) {
		owned = owned[:limit]
	}
	out := make([]Detail, 0, len(owned))
	for _, d := range owned {
		out = append(out, Detail{Document: d, Signatures: r.liveSignaturesLocked(d.ID)})
	}
	return out, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, documentID string, guard func(Detail) error) (Detail, error) {
	if err := ctx.Err(); err != nil {
		return Detail{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	detail, err := r.detailLocked(documentID)
	if err != nil {
		return Detail{}, err
	}
	if guard != nil {
		if err := guard(detail); err != nil {
			return Detail{}, err
		}
	}
	for id, s := range r.sigs {
		if s.DocumentID == documentID {
			delete(r.sigs, id)
		}
	}
	delete(r.regions, documentID)
	delete(r.docs, documentID)
	return detail, nil
}

func (r *MemoryRepo) ReplaceLayout(ctx context.Context, documentID string, numberOfSigners int, rs []regions.Region) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	if doc.Status == StatusCompleted {
		return nil, ErrCompleted
	}
	var dropped []string
	for id, s := range r.sigs {
		if s.DocumentID != documentID {
			continue
		}
		if s.SignedDocumentKey != "" {
			dropped = append(dropped, s.SignedDocumentKey)
		}
		delete(r.sigs, id)
	}
	sort.Strings(dropped)
	r.regions[documentID] = append([]regions.Region(nil), rs...)
	doc.NumberOfSigners = numberOfSigners
	doc.Status = StatusDraft
	doc.UpdatedAt = r.now().UTC()
	r.docs[documentID] = doc
	return dropped, nil
}

func (r *MemoryRepo) CreateRequest(ctx context.Context, documentID string, sigs []signing.Signature, guard func(Detail) error) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	if doc.Status == StatusCompleted {
		return Document{}, ErrCompleted
	}
	rs := r.regions[documentID]
	if len(rs) == 0 || len(sigs) != doc.NumberOfSigners {
		return Document{}, ErrLayoutChanged
	}
	if guard != nil {
		if err := guard(Detail{Document: doc, Regions: append([]regions.Region(nil), rs...)}); err != nil {
			return Document{}, err
		}
	}
	for _, s := range r.sigs {
		if s.DocumentID == documentID && s.Status == signing.StatusPending {
			return Document{}, ErrActiveRequest
		}
	}
	for _, s := range sigs {
		r.sigs[s.ID] = s
	}
	doc.Status = StatusSent
	if signing.AggregateOf(sigs) == signing.AggregateComplete {
		doc.Status = StatusCompleted
	}
	doc.UpdatedAt = r.now().UTC()
	r.docs[documentID] = doc
	return doc, nil
}

func (r *MemoryRepo) GetSignatureByToken(ctx context.Context, token string) (signing.Signature, error) {
	if err := ctx.Err(); err != nil {
		return signing.Signature{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sigs {
		if s.Token == token {
			return s, nil
		}
	}
	return signing.Signature{}, signing.ErrNotFound
}

func (r *MemoryRepo) ListRequest(ctx context.Context, requestID string) ([]signing.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked(requestID), nil
}

func (r *MemoryRepo) RecordSignature(ctx context.Context, u SignedUpdate) (SignOutcome, error) {
	if err := ctx.Err(); err != nil {
		return SignOutcome{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sig, ok := r.sigs[u.SignatureID]
	if !ok {
		return SignOutcome{}, signing.ErrNotFound
	}
	signed, err := signing.MarkSigned(sig, u.SignerName, u.Values, u.ArtifactKey, u.SignedAt)
	if err != nil {
		return SignOutcome{}, err
	}
	r.sigs[signed.ID] = signed
	members := r.membersLocked(signed.RequestID)
	out := SignOutcome{Signature: signed, Members: members}
	doc, ok := r.docs[signed.DocumentID]
	if ok && doc.Status != StatusCompleted && signing.AggregateOf(members) == signing.AggregateComplete {
		doc.Status = StatusCompleted
		doc.UpdatedAt = r.now().UTC()
		r.docs[doc.ID] = doc
		out.Completed = true
	}
	return out, nil
}

func (r *MemoryRepo) DeleteRequest(ctx context.Context, requestID string, guard func(Document, []signing.Signature) error) ([]signing.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.membersLocked(requestID)
	if len(members) == 0 {
		return nil, signing.ErrNotFound
	}
	doc, ok := r.docs[members[0].DocumentID]
	if !ok {
		return nil, ErrNotFound
	}
	if guard != nil {
		if err := guard(doc, members); err != nil {
			return nil, err
		}
	}
	for i, m := range members {
		if m.Status == signing.StatusPending {
			m.Status = signing.StatusDeleted
			r.sigs[m.ID] = m
			members[i] = m
		}
	}
	if doc.Status == StatusSent {
		doc.Status = StatusDraft
		doc.UpdatedAt = r.now().UTC()
		r.docs[doc.ID] = doc
	}
	return members, nil
}

func (r *MemoryRepo) SetFinalFile(ctx context.Context, documentID, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return false, ErrNotFound
	}
	if doc.FinalKey != "" {
		return false, nil
	}
	doc.FinalKey = key
	doc.UpdatedAt = r.now().UTC()
	r.docs[documentID] = doc
	return true, nil
}

func (r *MemoryRepo) detailLocked(documentID string) (Detail, error) {
	doc, ok := r.docs[documentID]
	if !ok {
		return Detail{}, ErrNotFound
	}
	return Detail{
		Document:   doc,
		Regions:    append([]regions.Region(nil), r.regions[documentID]...),
		Signatures: r.liveSignaturesLocked(documentID),
	}, nil
}

func (r *MemoryRepo) liveSignaturesLocked(documentID string) []signing.Signature {
	out := []signing.Signature{}
	for _, s := range r.sigs {
		if s.DocumentID == documentID && s.Status != signing.StatusDeleted {
			out = append(out, s)
		}
	}
	sortSignatures(out)
	return out
}

func (r *MemoryRepo) membersLocked(requestID string) []signing.Signature {
	var out []signing.Signature
	for _, s := range r.sigs {
		if s.RequestID == requestID {
			out = append(out, s)
		}
	}
	sortSignatures(out)
	return out
}

func sortSignatures(sigs []signing.Signature) {
	sort.Slice(sigs, func(i, j int) bool {
		if !sigs[i].CreatedAt.Equal(sigs[j].CreatedAt) {
			return sigs[i].CreatedAt.Before(sigs[j].CreatedAt)
		}
		if sigs[i].RequestID != sigs[j].RequestID {
			return sigs[i].RequestID < sigs[j].RequestID
		}
		return sigs[i].SignerIndex < sigs[j].SignerIndex
	})
}
