// Package mongorepo stores users in the "users" collection.
package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/co2market/auth-service/internal/account"
	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/co2market/auth-service/pkg/persistence/mongo"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	collectionName = "users"

	usernameIndex = "users_username_uniq"
	emailIndex    = "users_email_uniq"
)

type userDocument struct {
	ID                  string     `bson:"_id"`
	Username            string     `bson:"username"`
	Email               string     `bson:"email"`
	PasswordHash        string     `bson:"passwordHash"`
	FirstName           string     `bson:"firstName"`
	LastName            string     `bson:"lastName"`
	Role                string     `bson:"role"`
	Enabled             bool       `bson:"enabled"`
	PhoneNumber         string     `bson:"phoneNumber,omitempty"`
	Region              string     `bson:"region,omitempty"`
	VehicleMake         string     `bson:"vehicleMake,omitempty"`
	VehicleModel        string     `bson:"vehicleModel,omitempty"`
	VehicleLicensePlate string     `bson:"vehicleLicensePlate,omitempty"`
	OrganizationName    string     `bson:"organizationName,omitempty"`
	TaxID               string     `bson:"taxId,omitempty"`
	CertificationAgency string     `bson:"certificationAgency,omitempty"`
	LicenseNumber       string     `bson:"licenseNumber,omitempty"`
	CreatedAt           time.Time  `bson:"createdAt"`
	LastLoginAt         *time.Time `bson:"lastLoginAt,omitempty"`
}

func fromUser(u *account.User) userDocument {
	return userDocument{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		PasswordHash:        u.PasswordHash,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Role:                string(u.Role),
		Enabled:             u.Enabled,
		PhoneNumber:         u.PhoneNumber,
		Region:              u.Region,
		VehicleMake:         u.VehicleMake,
		VehicleModel:        u.VehicleModel,
		VehicleLicensePlate: u.VehicleLicensePlate,
		OrganizationName:    u.OrganizationName,
		TaxID:               u.TaxID,
		CertificationAgency: u.CertificationAgency,
		LicenseNumber:       u.LicenseNumber,
		CreatedAt:           u.CreatedAt,
		LastLoginAt:         u.LastLoginAt,
	}
}

func (d userDocument) toUser() *account.User {
	return &account.User{
		ID:                  d.ID,
		Username:            d.Username,
		Email:               d.Email,
		PasswordHash:        d.PasswordHash,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		Role:                account.Role(d.Role),
		Enabled:             d.Enabled,
		PhoneNumber:         d.PhoneNumber,
		Region:              d.Region,
		VehicleMake:         d.VehicleMake,
		VehicleModel:        d.VehicleModel,
		VehicleLicensePlate: d.VehicleLicensePlate,
		OrganizationName:    d.OrganizationName,
		TaxID:               d.TaxID,
		CertificationAgency: d.CertificationAgency,
		LicenseNumber:       d.LicenseNumber,
		CreatedAt:           d.CreatedAt.UTC(),
		LastLoginAt:         d.LastLoginAt,
	}
}

type repository struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

func New(m mongo.Mongo) account.Repository {
	return &repository{coll: m.Collection(collectionName), timeout: m.QueryTimeout()}
}

func (r *repository) Create(ctx context.Context, u *account.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, fromUser(u)); err != nil {
		return translateDuplicate(err)
	}
	return nil
}

// translateDuplicate names the conflicting field from the violated index.
func translateDuplicate(err error) error {
	if !mongodriver.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	switch msg := err.Error(); {
	case strings.Contains(msg, emailIndex):
		return account.ErrEmailTaken
	case strings.Contains(msg, usernameIndex):
		return account.ErrUsernameTaken
	default:
		return fmt.Errorf("failed to insert user: %w", mongo.TranslateError(err))
	}
}

func (r *repository) findOne(ctx context.Context, filter bson.M) (*account.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, persistence.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toUser(), nil
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*account.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*account.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *repository) exists(ctx context.Context, filter bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	return n > 0, nil
}

func (r *repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, bson.M{"username": username})
}

func (r *repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, bson.M{"email": email})
}

func (r *repository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastLoginAt": at}})
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if res.MatchedCount == 0 {
		return persistence.ErrEntityNotFound
	}
	return nil
}

var indexes = []mongodriver.IndexModel{
	{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetName(usernameIndex).SetUnique(true),
	},
	{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName(emailIndex).SetUnique(true),
	},
}

// EnsureIndexes creates the unique username and email indexes.
func EnsureIndexes(ctx context.Context, db *mongodriver.Database) error {
	if _, err := db.Collection(collectionName).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}
