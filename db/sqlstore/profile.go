package sqlstore

import (
	"context"
	"strings"
	"time"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
)

type ProfileDB struct {
	*base
}

type flattenedProfile struct {
	Id          string    `db:"id"`
	DisplayName string    `db:"display_name"`
	Email       string    `db:"email"`
	Role        string    `db:"role"`
	IsVerified  bool      `db:"is_verified"`
	Bio         string    `db:"bio"`
	Location    string    `db:"location"`
	CreatedAt   time.Time `db:"created_at"`
}

func (fp *flattenedProfile) toProfile() *model.Profile {
	return &model.Profile{
		Id:          fp.Id,
		DisplayName: fp.DisplayName,
		Email:       fp.Email,
		Role:        model.ParseRole(fp.Role),
		IsVerified:  fp.IsVerified,
		Bio:         fp.Bio,
		Location:    fp.Location,
		CreatedAt:   fp.CreatedAt,
		Persisted:   true,
	}
}

var profileColumns = []interface{}{
	"id",
	"display_name",
	"email",
	"role",
	"is_verified",
	"bio",
	"location",
	"created_at",
}

func (pdb *ProfileDB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	var profile flattenedProfile
	if err := pdb.sess.SQL().
		Select(profileColumns...).
		From("profiles").
		Where("id = ?", id).
		IteratorContext(ctx).
		One(&profile); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return profile.toProfile(), nil
}

func (pdb *ProfileDB) GetProfilesByIds(ctx context.Context, ids []string) ([]*model.Profile, error) {
	if len(ids) == 0 {
		return []*model.Profile{}, nil
	}
	var flattened []flattenedProfile
	if err := pdb.sess.SQL().
		Select(profileColumns...).
		From("profiles").
		Where("id IN ?", ids).
		IteratorContext(ctx).
		All(&flattened); err != nil {
		return nil, err
	}
	profiles := make([]*model.Profile, len(flattened))
	for i := range flattened {
		profiles[i] = flattened[i].toProfile()
	}
	return profiles, nil
}

func (pdb *ProfileDB) CreateProfile(ctx context.Context, profile *model.Profile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = pdb.timestamp()
	}
	if _, err := pdb.sess.SQL().
		InsertInto("profiles").
		Columns(columnNames(profileColumns)...).
		Values(
			profile.Id,
			profile.DisplayName,
			profile.Email,
			profile.Role,
			profile.IsVerified,
			profile.Bio,
			profile.Location,
			profile.CreatedAt.UTC(),
		).
		ExecContext(ctx); err != nil {
		return err
	}
	pdb.publish(ctx, realtime.TableProfiles, realtime.EventInsert, profile)
	return nil
}

func (pdb *ProfileDB) UpdateProfile(ctx context.Context, id string, update *appDb.ProfileUpdate) error {
	var assignments []string
	var args []interface{}
	if update.DisplayName != nil {
		assignments = append(assignments, "display_name = ?")
		args = append(args, *update.DisplayName)
	}
	if update.Bio != nil {
		assignments = append(assignments, "bio = ?")
		args = append(args, *update.Bio)
	}
	if update.Location != nil {
		assignments = append(assignments, "location = ?")
		args = append(args, *update.Location)
	}
	if update.Role != nil {
		assignments = append(assignments, "role = ?")
		args = append(args, *update.Role)
	}
	if update.IsVerified != nil {
		assignments = append(assignments, "is_verified = ?")
		args = append(args, *update.IsVerified)
	}
	if len(assignments) == 0 {
		return nil
	}

	existing, err := pdb.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return appDb.ErrNotFound
	}

	setTerms := append([]interface{}{strings.Join(assignments, ", ")}, args...)
	if _, err := pdb.sess.SQL().
		Update("profiles").
		Set(setTerms...).
		Where("id = ?", id).
		ExecContext(ctx); err != nil {
		return err
	}
	pdb.publish(ctx, realtime.TableProfiles, realtime.EventUpdate, map[string]string{"id": id})
	return nil
}
