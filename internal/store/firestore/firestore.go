// Package firestore implements the store boundary against Cloud Firestore.
//
// Layout mirrors the mobile client's document model:
//
//	users/{uid}                    fcmToken
//	users/{uid}/income/{id}        amount, source, note, documentUrl, timestamp
//	users/{uid}/expenses/{id}      amount, category, note, receiptUrl, timestamp
//	users/{uid}/insights/{id}      type, title, body, category, messageHash, read, timestamp
package firestore

import (
	"context"
	"fmt"
	"time"

	fs "cloud.google.com/go/firestore"
	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/store"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection    = "users"
	incomeCollection   = "income"
	expenseCollection  = "expenses"
	insightsCollection = "insights"

	timestampField = "timestamp"
	readField      = "read"
	tokenField     = "fcmToken"
)

// Client wraps a Firestore connection and implements the store interfaces.
type Client struct {
	fs *fs.Client
}

// New connects to Firestore for the given project.
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Client, error) {
	client, err := fs.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: creating client: %w", err)
	}
	return &Client{fs: client}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.fs.Close()
}

func (c *Client) userDoc(userID string) *fs.DocumentRef {
	return c.fs.Collection(usersCollection).Doc(userID)
}

type incomeDoc struct {
	Amount      float64   `firestore:"amount"`
	Source      string    `firestore:"source"`
	Note        string    `firestore:"note,omitempty"`
	DocumentURL string    `firestore:"documentUrl,omitempty"`
	Timestamp   time.Time `firestore:"timestamp"`
}

type expenseDoc struct {
	Amount     float64   `firestore:"amount"`
	Category   string    `firestore:"category"`
	Note       string    `firestore:"note,omitempty"`
	ReceiptURL string    `firestore:"receiptUrl,omitempty"`
	Timestamp  time.Time `firestore:"timestamp"`
}

type insightDoc struct {
	Type        string    `firestore:"type"`
	Title       string    `firestore:"title"`
	Body        string    `firestore:"body"`
	Category    string    `firestore:"category,omitempty"`
	MessageHash string    `firestore:"messageHash"`
	Read        bool      `firestore:"read"`
	Timestamp   time.Time `firestore:"timestamp,serverTimestamp"`
}

// ListIncome implements store.TransactionReader.
func (c *Client) ListIncome(ctx context.Context, userID string, since time.Time) ([]domain.Income, error) {
	q := c.userDoc(userID).Collection(incomeCollection).Query
	if !since.IsZero() {
		q = q.Where(timestampField, ">=", since)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.Income
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: reading income for %s: %w", userID, err)
		}

		var doc incomeDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore: decoding income %s: %w", snap.Ref.ID, err)
		}
		out = append(out, domain.Income{
			ID:          snap.Ref.ID,
			Source:      doc.Source,
			Amount:      doc.Amount,
			Note:        doc.Note,
			DocumentURI: doc.DocumentURL,
			OccurredAt:  doc.Timestamp,
		})
	}
	return out, nil
}

// ListExpenses implements store.TransactionReader.
func (c *Client) ListExpenses(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error) {
	q := c.userDoc(userID).Collection(expenseCollection).Query
	if !since.IsZero() {
		q = q.Where(timestampField, ">=", since)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.Expense
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: reading expenses for %s: %w", userID, err)
		}

		var doc expenseDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore: decoding expense %s: %w", snap.Ref.ID, err)
		}
		out = append(out, domain.Expense{
			ID:         snap.Ref.ID,
			Category:   doc.Category,
			Amount:     doc.Amount,
			Note:       doc.Note,
			ReceiptURI: doc.ReceiptURL,
			OccurredAt: doc.Timestamp,
		})
	}
	return out, nil
}

// Append implements store.InsightStore. The id is assigned by Firestore and
// the timestamp by the server.
func (c *Client) Append(ctx context.Context, userID string, cand domain.InsightCandidate) (domain.InsightRecord, error) {
	ref, wr, err := c.userDoc(userID).Collection(insightsCollection).Add(ctx, insightDoc{
		Type:        string(cand.Type),
		Title:       cand.Title,
		Body:        cand.Body,
		Category:    cand.Category,
		MessageHash: cand.Hash,
		Read:        false,
	})
	if err != nil {
		return domain.InsightRecord{}, fmt.Errorf("firestore: appending insight for %s: %w", userID, err)
	}

	return domain.InsightRecord{
		ID:        ref.ID,
		Type:      cand.Type,
		Title:     cand.Title,
		Body:      cand.Body,
		Category:  cand.Category,
		Hash:      cand.Hash,
		Read:      false,
		CreatedAt: wr.UpdateTime,
	}, nil
}

// ListRecent implements store.InsightStore.
func (c *Client) ListRecent(ctx context.Context, userID string, since time.Time) ([]domain.InsightRecord, error) {
	q := c.insightsQuery(userID)
	if !since.IsZero() {
		q = q.Where(timestampField, ">=", since)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.InsightRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: reading insights for %s: %w", userID, err)
		}
		rec, err := decodeInsight(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarkRead implements store.InsightStore. Only the read flag is touched.
func (c *Client) MarkRead(ctx context.Context, userID, insightID string) error {
	ref := c.userDoc(userID).Collection(insightsCollection).Doc(insightID)
	_, err := ref.Update(ctx, []fs.Update{{Path: readField, Value: true}})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("firestore: insight %s for user %s: %w", insightID, userID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("firestore: marking insight %s read: %w", insightID, err)
	}
	return nil
}

// Watch implements store.InsightWatcher using Firestore query snapshots.
func (c *Client) Watch(ctx context.Context, userID string) (<-chan []domain.InsightRecord, error) {
	snapIter := c.insightsQuery(userID).Snapshots(ctx)
	ch := make(chan []domain.InsightRecord, 8)

	go func() {
		defer close(ch)
		defer snapIter.Stop()

		for {
			snap, err := snapIter.Next()
			if err != nil {
				return
			}

			var records []domain.InsightRecord
			docs := snap.Documents
			for {
				docSnap, err := docs.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					return
				}
				rec, err := decodeInsight(docSnap)
				if err != nil {
					continue
				}
				records = append(records, rec)
			}

			select {
			case ch <- records:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// DeviceToken implements store.DeviceTokenSource.
func (c *Client) DeviceToken(ctx context.Context, userID string) (string, error) {
	snap, err := c.userDoc(userID).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("firestore: reading user %s: %w", userID, err)
	}
	raw, err := snap.DataAt(tokenField)
	if err != nil {
		// Field absent: no registered device.
		return "", nil
	}
	token, _ := raw.(string)
	return token, nil
}

func (c *Client) insightsQuery(userID string) fs.Query {
	return c.userDoc(userID).Collection(insightsCollection).
		OrderBy(timestampField, fs.Desc)
}

func decodeInsight(snap *fs.DocumentSnapshot) (domain.InsightRecord, error) {
	var doc insightDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.InsightRecord{}, fmt.Errorf("firestore: decoding insight %s: %w", snap.Ref.ID, err)
	}
	return domain.InsightRecord{
		ID:        snap.Ref.ID,
		Type:      domain.ParseInsightType(doc.Type),
		Title:     doc.Title,
		Body:      doc.Body,
		Category:  doc.Category,
		Hash:      doc.MessageHash,
		Read:      doc.Read,
		CreatedAt: doc.Timestamp,
	}, nil
}

var _ store.TransactionReader = (*Client)(nil)
var _ store.InsightStore = (*Client)(nil)
var _ store.InsightWatcher = (*Client)(nil)
var _ store.DeviceTokenSource = (*Client)(nil)
