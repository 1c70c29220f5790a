package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/logger"
	"github.com/nikmy/graphtx/pkg/txn"
)

func New(log logger.Logger, txm *txn.Manager, repo *Repo, database string) API {
	return &service{
		log:      log.With("users"),
		txm:      txm,
		repo:     repo,
		database: database,
	}
}

type service struct {
	log      logger.Logger
	txm      *txn.Manager
	repo     *Repo
	database string
}

func (s *service) Save(ctx context.Context, outer *txn.Context, u User) (User, error) {
	err := u.validate()
	if err != nil {
		return User{}, err
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	err = s.txm.WithTransaction(ctx, outer, txn.Write(s.database), func(ctx context.Context, tx *txn.Context) error {
		return s.repo.Create(ctx, tx, u)
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *service) SaveAll(ctx context.Context, users []User) ([]User, bookmark.Set, error) {
	var root *txn.Context
	saved, err := txn.Query(ctx, s.txm, nil, txn.Write(s.database),
		func(ctx context.Context, tx *txn.Context) ([]User, error) {
			root = tx
			saved := make([]User, 0, len(users))
			for _, u := range users {
				u, err := s.Save(ctx, tx, u)
				if err != nil {
					return nil, err
				}
				saved = append(saved, u)
			}
			return saved, nil
		},
	)
	if err != nil {
		return nil, bookmark.Set{}, err
	}

	s.log.Debugf("saved %d users, bookmarks %s", len(saved), root.Produced())
	return saved, root.Produced(), nil
}

func (s *service) All(ctx context.Context, after bookmark.Set) ([]User, error) {
	def := txn.Read(s.database).WithBookmarks(after)
	return txn.Query(ctx, s.txm, nil, def, s.repo.All)
}

func (s *service) ByName(ctx context.Context, name string, after bookmark.Set) ([]User, error) {
	def := txn.Read(s.database).WithBookmarks(after)
	return txn.Query(ctx, s.txm, nil, def, func(ctx context.Context, tx *txn.Context) ([]User, error) {
		return s.repo.ByName(ctx, tx, name)
	})
}
