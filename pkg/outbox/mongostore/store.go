// Package mongostore keeps outbox records in the "outbox" collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/co2market/auth-service/pkg/outbox"
	"github.com/co2market/auth-service/pkg/persistence/mongo"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const collectionName = "outbox"

type store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns an outbox.Store on m.
func New(m mongo.Mongo) outbox.Store {
	return &store{
		coll:    m.Collection(collectionName),
		timeout: m.QueryTimeout(),
	}
}

func (s *store) Append(ctx context.Context, ev *outbox.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, fromEvent(ev))
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", mongo.TranslateError(err))
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		ev.ID = id.Hex()
	}
	return nil
}

func unlocked(now time.Time) bson.A {
	return bson.A{
		bson.M{"lockedUntil": nil},
		bson.M{"lockedUntil": bson.M{"$lt": now}},
	}
}

func (s *store) Claim(ctx context.Context, req outbox.ClaimRequest) ([]*outbox.Event, error) {
	filter := bson.M{
		"status":        string(outbox.StatusPending),
		"published":     false,
		"retryCount":    bson.M{"$lt": req.MaxRetries},
		"nextAttemptAt": bson.M{"$lte": req.Now},
		"$or":           unlocked(req.Now),
	}
	update := bson.M{"$set": bson.M{
		"lockedUntil": req.LockedUntil(),
		"lockOwner":   req.Owner,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	// One FindOneAndUpdate per record keeps each lease atomic without a
	// transaction; the sort makes successive claims oldest first.
	events := make([]*outbox.Event, 0, req.Limit)
	for len(events) < req.Limit {
		var doc document
		err := s.findOneAndUpdate(ctx, filter, update, opts, &doc)
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			break
		}
		if err != nil {
			return events, fmt.Errorf("failed to claim outbox event: %w", err)
		}
		events = append(events, doc.toEvent())
	}
	return events, nil
}

func (s *store) ClaimForRedelivery(ctx context.Context, eventID, owner string, now time.Time, lease time.Duration) (*outbox.Event, error) {
	filter := bson.M{
		"eventId":   eventID,
		"published": false,
		"$or":       unlocked(now),
	}
	update := bson.M{"$set": bson.M{
		"lockedUntil": now.Add(lease),
		"lockOwner":   owner,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc document
	err := s.findOneAndUpdate(ctx, filter, update, opts, &doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		if _, findErr := s.FindByEventID(ctx, eventID); findErr != nil {
			return nil, findErr
		}
		return nil, outbox.ErrLeaseLost
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox event for redelivery: %w", err)
	}
	return doc.toEvent(), nil
}

func (s *store) findOneAndUpdate(ctx context.Context, filter, update any, opts *options.FindOneAndUpdateOptionsBuilder, doc *document) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(doc)
}

func leased(eventID, owner string) bson.M {
	return bson.M{"eventId": eventID, "lockOwner": owner, "published": false}
}

var clearLease = bson.M{"lockedUntil": "", "lockOwner": ""}

func (s *store) MarkPublished(ctx context.Context, eventID, owner string, at time.Time) error {
	return s.updateLeased(ctx, eventID, owner, bson.M{
		"$set": bson.M{
			"published":   true,
			"publishedAt": at,
			"status":      string(outbox.StatusPublished),
		},
		"$unset": clearLease,
	})
}

func (s *store) MarkFailed(ctx context.Context, eventID, owner string, f outbox.Failure) error {
	set := bson.M{
		"errorMessage":  f.Reason,
		"nextAttemptAt": f.NextAttemptAt,
	}
	if f.Abandon {
		set["status"] = string(outbox.StatusAbandoned)
		set["abandonedAt"] = f.FailedAt
	}
	return s.updateLeased(ctx, eventID, owner, bson.M{
		"$set":   set,
		"$inc":   bson.M{"retryCount": 1},
		"$unset": clearLease,
	})
}

func (s *store) Release(ctx context.Context, eventID, owner, reason string) error {
	update := bson.M{"$unset": clearLease}
	if reason != "" {
		update["$set"] = bson.M{"errorMessage": reason}
	}
	return s.updateLeased(ctx, eventID, owner, update)
}

func (s *store) updateLeased(ctx context.Context, eventID, owner string, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx, leased(eventID, owner), update)
	if err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	if res.MatchedCount == 0 {
		return outbox.ErrLeaseLost
	}
	return nil
}

func (s *store) AbandonExhausted(ctx context.Context, maxRetries int, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.UpdateMany(ctx, bson.M{
		"status":     string(outbox.StatusPending),
		"published":  false,
		"retryCount": bson.M{"$gte": maxRetries},
		"$or":        unlocked(at),
	}, bson.M{"$set": bson.M{
		"status":      string(outbox.StatusAbandoned),
		"abandonedAt": at,
	}})
	if err != nil {
		return 0, fmt.Errorf("failed to abandon exhausted outbox events: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *store) ListAbandoned(ctx context.Context, limit int) ([]*outbox.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "abandonedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{"status": string(outbox.StatusAbandoned)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned outbox events: %w", err)
	}

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode abandoned outbox events: %w", err)
	}
	events := make([]*outbox.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toEvent())
	}
	return events, nil
}

func (s *store) FindByEventID(ctx context.Context, eventID string) (*outbox.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc document
	err := s.coll.FindOne(ctx, bson.M{"eventId": eventID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, outbox.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find outbox event: %w", err)
	}
	return doc.toEvent(), nil
}
