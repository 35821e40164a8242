//go:build integration

package database_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"novel-fork/internal/database"
	"novel-fork/internal/interfaces"
	"novel-fork/internal/messaging"
	"novel-fork/internal/models"
	"novel-fork/internal/service"
	pgdb "novel-fork/pkg/database"
	"novel-fork/pkg/migration"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// IntegrationTestSuite поднимает PostgreSQL, Redis и RabbitMQ в контейнерах.
type IntegrationTestSuite struct {
	suite.Suite
	ctx context.Context

	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	mqContainer *rabbitmq.RabbitMQContainer

	db          *pgdb.Database
	redisClient *redis.Client
	amqpConn    *amqp.Connection
	logger      *zap.Logger

	stories   interfaces.StoryCatalogRepository
	forks     interfaces.ForkRepository
	commits   interfaces.CommitRepository
	bookmarks interfaces.BookmarkRepository
	prs       interfaces.PrRepository
}

func (s *IntegrationTestSuite) SetupSuite() {
	testcontainers.SkipIfProviderIsNotHealthy(s.T())

	s.ctx = context.Background()
	var err error
	s.logger, err = zap.NewDevelopment()
	s.Require().NoError(err)

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("fork_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	s.Require().NoError(err, "Failed to start postgres container")

	dsn, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	pool, err := pgxpool.New(s.ctx, dsn)
	s.Require().NoError(err)
	s.db = pgdb.FromPool(pool)

	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: database.MigrationsPath,
		MigrationsFS:   database.MigrationsFS,
	}, pool)
	s.Require().NoError(migrator.Up(s.ctx), "Failed to run migrations")

	s.rdContainer, err = tcredis.Run(s.ctx, "docker.io/redis:7-alpine")
	s.Require().NoError(err, "Failed to start redis container")
	redisURL, err := s.rdContainer.ConnectionString(s.ctx)
	s.Require().NoError(err)
	opts, err := redis.ParseURL(redisURL)
	s.Require().NoError(err)
	s.redisClient = redis.NewClient(opts)
	s.Require().NoError(s.redisClient.Ping(s.ctx).Err())

	s.mqContainer, err = rabbitmq.Run(s.ctx, "rabbitmq:3.13-management-alpine")
	s.Require().NoError(err, "Failed to start rabbitmq container")
	amqpURL, err := s.mqContainer.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpConn, err = messaging.Connect(amqpURL, 5, time.Second, s.logger)
	s.Require().NoError(err)

	s.stories = database.NewPgStoryCatalogRepository(s.logger)
	s.forks = database.NewPgForkRepository(s.logger)
	s.commits = database.NewPgCommitRepository(s.logger)
	s.bookmarks = database.NewPgBookmarkRepository(s.logger)
	s.prs = database.NewPgPrRepository(s.logger)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.amqpConn != nil {
		_ = s.amqpConn.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	if s.mqContainer != nil {
		_ = s.mqContainer.Terminate(s.ctx)
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	_, err := s.db.Pool.Exec(s.ctx, `TRUNCATE stories, pr_novels RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
	s.Require().NoError(s.redisClient.FlushDB(s.ctx).Err())
}

// seedStory создаёт опубликованную историю с тремя главами и одной точкой ветвления.
func (s *IntegrationTestSuite) seedStory(slug string) (*models.Story, int64, int64) {
	authorID := uuid.New()
	var storyID int64
	err := s.db.Pool.QueryRow(s.ctx,
		`INSERT INTO stories (slug, title, author_id, author_name, is_published) VALUES ($1, $2, $3, 'Автор', TRUE) RETURNING id`,
		slug, "История "+slug, authorID,
	).Scan(&storyID)
	s.Require().NoError(err)

	for i := 1; i <= 3; i++ {
		s.Require().NoError(s.stories.InsertChapter(s.ctx, s.db.Querier(), &models.StoryChapter{
			StoryID:         storyID,
			SortOrder:       i,
			Title:           "Глава",
			ContentMarkdown: "Текст главы",
			AuthorID:        authorID,
			AuthorName:      "Автор",
			IsMainline:      true,
			WordCount:       2,
		}))
	}

	var bpID, optionID int64
	s.Require().NoError(s.db.Pool.QueryRow(s.ctx,
		`INSERT INTO branch_points (story_id, sort_order, anchor_text) VALUES ($1, 1, 'Развилка') RETURNING id`, storyID,
	).Scan(&bpID))
	s.Require().NoError(s.db.Pool.QueryRow(s.ctx,
		`INSERT INTO branch_options (branch_point_id, label) VALUES ($1, 'Налево') RETURNING id`, bpID,
	).Scan(&optionID))

	story, err := s.stories.GetPublishedBySlug(s.ctx, s.db.Querier(), slug)
	s.Require().NoError(err)
	return story, bpID, optionID
}

func (s *IntegrationTestSuite) newFork(userID uuid.UUID, storyID int64) *models.Fork {
	fork := &models.Fork{UserID: userID, StoryID: storyID}
	s.Require().NoError(s.forks.Create(s.ctx, s.db.Querier(), fork))
	return fork
}

func (s *IntegrationTestSuite) TestForkRepository_UniquePerUserAndStory() {
	story, _, _ := s.seedStory("forest")
	userID := uuid.New()
	fork := s.newFork(userID, story.ID)
	s.NotZero(fork.ID)

	err := s.forks.Create(s.ctx, s.db.Querier(), &models.Fork{UserID: userID, StoryID: story.ID})
	s.ErrorIs(err, models.ErrConflict)

	exists, err := s.forks.ExistsByUserAndSlug(s.ctx, s.db.Querier(), userID, "forest")
	s.Require().NoError(err)
	s.True(exists)

	loaded, err := s.forks.GetByID(s.ctx, s.db.Querier(), fork.ID)
	s.Require().NoError(err)
	s.Equal("forest", loaded.StorySlug)
}

func (s *IntegrationTestSuite) TestForkRepository_ListByUserPaginates() {
	userID := uuid.New()
	for _, slug := range []string{"a", "b", "c"} {
		story, _, _ := s.seedStory(slug)
		s.newFork(userID, story.ID)
	}

	page, cursor, err := s.forks.ListByUser(s.ctx, s.db.Querier(), userID, "", 2)
	s.Require().NoError(err)
	s.Len(page, 2)
	s.NotEmpty(cursor)

	rest, next, err := s.forks.ListByUser(s.ctx, s.db.Querier(), userID, cursor, 2)
	s.Require().NoError(err)
	s.Len(rest, 1)
	s.Empty(next)
	s.NotEqual(page[0].ID, rest[0].ID)
	s.NotEqual(page[1].ID, rest[0].ID)
}

func (s *IntegrationTestSuite) TestCommitRepository_ContiguousLog() {
	story, bpID, optionID := s.seedStory("river")
	fork := s.newFork(uuid.New(), story.ID)

	for i := 0; i < 3; i++ {
		c := &models.Commit{ForkID: fork.ID, Title: "Коммит", ContentMarkdown: "Текст"}
		if i == 0 {
			c.BranchPointID, c.OptionID = &bpID, &optionID
		}
		s.Require().NoError(s.commits.Append(s.ctx, s.db.Querier(), c))
		s.Equal(i+1, c.SortOrder)
	}

	resolved, err := s.commits.LastResolvedBranchPointSortOrder(s.ctx, s.db.Querier(), fork.ID)
	s.Require().NoError(err)
	s.Equal(1, resolved)

	deleted, err := s.commits.DeleteFromSortOrder(s.ctx, s.db.Querier(), fork.ID, 2)
	s.Require().NoError(err)
	s.Equal(int64(2), deleted)

	c := &models.Commit{ForkID: fork.ID, Title: "После отката", ContentMarkdown: "Текст"}
	s.Require().NoError(s.commits.Append(s.ctx, s.db.Querier(), c))
	s.Equal(2, c.SortOrder)

	count, err := s.commits.Count(s.ctx, s.db.Querier(), fork.ID)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *IntegrationTestSuite) TestBookmarkRepository_ExactlyOneTarget() {
	story, _, _ := s.seedStory("hill")
	fork := s.newFork(uuid.New(), story.ID)

	sortOrder := 2
	ok := &models.Bookmark{ForkID: fork.ID, ChapterSortOrder: &sortOrder}
	s.Require().NoError(s.bookmarks.Create(s.ctx, s.db.Querier(), ok))

	s.Error(s.bookmarks.Create(s.ctx, s.db.Querier(), &models.Bookmark{ForkID: fork.ID}))

	list, err := s.bookmarks.ListByFork(s.ctx, s.db.Querier(), fork.ID)
	s.Require().NoError(err)
	s.Len(list, 1)

	// Удаление форка уносит закладки каскадом.
	s.Require().NoError(s.forks.Delete(s.ctx, s.db.Querier(), fork.ID))
	list, err = s.bookmarks.ListByFork(s.ctx, s.db.Querier(), fork.ID)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *IntegrationTestSuite) TestPrRepository_SinglePendingSubmission() {
	story, _, _ := s.seedStory("sea")
	userID := uuid.New()
	fork := s.newFork(userID, story.ID)

	newSubmission := func() *models.PrSubmission {
		return &models.PrSubmission{
			StoryID:     story.ID,
			ForkID:      &fork.ID,
			SubmitterID: userID,
			AuthorID:    story.AuthorID,
			Title:       "Моя ветка",
			Status:      models.SubmissionStatusPending,
		}
	}
	first := newSubmission()
	s.Require().NoError(s.prs.CreateSubmission(s.ctx, s.db.Querier(), first))
	s.ErrorIs(s.prs.CreateSubmission(s.ctx, s.db.Querier(), newSubmission()), models.ErrPendingSubmission)

	pending, err := s.prs.HasPendingForFork(s.ctx, s.db.Querier(), fork.ID)
	s.Require().NoError(err)
	s.True(pending)

	s.Require().NoError(s.prs.UpdateSubmissionReview(s.ctx, s.db.Querier(), first.ID, models.SubmissionStatusRejected, nil))
	s.NoError(s.prs.CreateSubmission(s.ctx, s.db.Querier(), newSubmission()))
}

func (s *IntegrationTestSuite) TestRedisPreviewRepository() {
	repo := database.NewRedisPreviewRepository(s.redisClient, time.Minute, s.logger)
	chapters := []models.PreviewChapter{
		{ChapterNumber: 4, Title: "Четвёртая", ContentMarkdown: "Текст", CreatedAt: time.Now().UTC().Truncate(time.Second)},
		{ChapterNumber: 5, Title: "Пятая", ContentMarkdown: "Текст", CreatedAt: time.Now().UTC().Truncate(time.Second)},
	}
	s.Require().NoError(repo.Replace(s.ctx, 7, chapters))

	got, err := repo.List(s.ctx, 7)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(5, got[1].ChapterNumber)

	s.Require().NoError(repo.Clear(s.ctx, 7))
	got, err = repo.List(s.ctx, 7)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *IntegrationTestSuite) TestRedisBranchTreeCache() {
	cache := database.NewRedisBranchTreeCache(s.redisClient, time.Minute, s.logger)
	_, hit, err := cache.Get(s.ctx, 3)
	s.Require().NoError(err)
	s.False(hit)

	s.Require().NoError(cache.Set(s.ctx, 3, []models.StoryChapter{{ID: 1, StoryID: 3, SortOrder: 1, IsMainline: true}}))
	nodes, hit, err := cache.Get(s.ctx, 3)
	s.Require().NoError(err)
	s.True(hit)
	s.Len(nodes, 1)

	s.Require().NoError(cache.Invalidate(s.ctx, 3))
	_, hit, err = cache.Get(s.ctx, 3)
	s.Require().NoError(err)
	s.False(hit)
}

func (s *IntegrationTestSuite) TestRedisForkLocker() {
	locker := database.NewRedisForkLocker(s.redisClient, time.Minute, s.logger)
	release, err := locker.TryLock(s.ctx, "fork:1")
	s.Require().NoError(err)

	_, err = locker.TryLock(s.ctx, "fork:1")
	s.ErrorIs(err, models.ErrForkBusy)
	_, err = locker.Lock(s.ctx, "fork:1", 100*time.Millisecond)
	s.ErrorIs(err, models.ErrStoryBusy)

	release()
	release, err = locker.TryLock(s.ctx, "fork:1")
	s.Require().NoError(err)
	release()
}

func (s *IntegrationTestSuite) TestForkServiceAppendAndRollback() {
	story, bpID, optionID := s.seedStory("valley")
	userID := uuid.New()
	deps := service.Deps{
		DB:        s.db,
		Stories:   s.stories,
		Branches:  database.NewPgBranchCatalogRepository(s.logger),
		Forks:     s.forks,
		Commits:   s.commits,
		Bookmarks: s.bookmarks,
		PRs:       s.prs,
		Previews:  database.NewRedisPreviewRepository(s.redisClient, time.Minute, s.logger),
		TreeCache: database.NewRedisBranchTreeCache(s.redisClient, time.Minute, s.logger),
		Locker:    database.NewRedisForkLocker(s.redisClient, time.Minute, s.logger),
	}
	opts := service.Options{}
	forks := service.NewForkService(deps, service.NewPromptBuilder(deps, opts, s.logger), opts, s.logger)

	fork, err := forks.CreateFork(s.ctx, userID, story.Slug)
	s.Require().NoError(err)
	again, err := forks.CreateFork(s.ctx, userID, story.Slug)
	s.Require().NoError(err)
	s.Equal(fork.ID, again.ID)

	first, err := forks.AppendCommit(s.ctx, service.AppendCommitInput{
		ForkID: fork.ID, RequesterID: userID, BranchPointID: &bpID, OptionID: &optionID,
		Title: "Налево", ContentMarkdown: "Герой свернул налево.",
	})
	s.Require().NoError(err)
	s.Equal(1, first.SortOrder)

	// Точка уже разрешена.
	_, err = forks.AppendCommit(s.ctx, service.AppendCommitInput{
		ForkID: fork.ID, RequesterID: userID, BranchPointID: &bpID, Title: "Снова", ContentMarkdown: "Текст",
	})
	s.ErrorIs(err, models.ErrBranchPointOrder)

	_, err = forks.AppendCommit(s.ctx, service.AppendCommitInput{
		ForkID: fork.ID, RequesterID: userID, Title: "Дальше", ContentMarkdown: "Текст",
	})
	s.Require().NoError(err)

	var selections int
	s.Require().NoError(s.db.Pool.QueryRow(s.ctx, `SELECT selection_count FROM branch_options WHERE id = $1`, optionID).Scan(&selections))
	s.Equal(1, selections)

	s.Require().NoError(forks.Rollback(s.ctx, fork.ID, userID, first.ID))
	commits, err := forks.ListCommits(s.ctx, fork.ID, userID)
	s.Require().NoError(err)
	s.Empty(commits)

	_, err = forks.GetFork(s.ctx, fork.ID, uuid.New())
	s.ErrorIs(err, models.ErrNotForkOwner)
}

type recordingInvalidator struct {
	calls chan int64
}

func (r *recordingInvalidator) InvalidateTree(_ context.Context, storyID int64) error {
	r.calls <- storyID
	return nil
}

func (s *IntegrationTestSuite) TestMessagingRoundTrip() {
	publisher, err := messaging.NewForkEventPublisher(s.amqpConn, "fork_events_test", s.logger)
	s.Require().NoError(err)
	forkID := int64(12)
	s.Require().NoError(publisher.PublishForkEvent(s.ctx, models.ForkEvent{
		Type: models.EventCommitAppended, StoryID: 5, ForkID: &forkID, UserID: uuid.New(), OccurredAt: time.Now().UTC(),
	}))

	ch, err := s.amqpConn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	var delivery amqp.Delivery
	s.Require().Eventually(func() bool {
		d, ok, getErr := ch.Get("fork_events_test", true)
		delivery = d
		return getErr == nil && ok
	}, 5*time.Second, 100*time.Millisecond)
	var event models.ForkEvent
	s.Require().NoError(json.Unmarshal(delivery.Body, &event))
	s.Equal(models.EventCommitAppended, event.Type)
	s.Equal(int64(5), event.StoryID)

	// Очередь объявляем заранее, иначе сообщение уйдёт в никуда до старта консьюмера.
	_, err = ch.QueueDeclare("chapter_events_test", true, false, false, false, nil)
	s.Require().NoError(err)

	invalidator := &recordingInvalidator{calls: make(chan int64, 1)}
	consumer := messaging.NewChapterEventConsumer(s.amqpConn, "chapter_events_test", invalidator, s.logger)
	done := make(chan error, 1)
	go func() { done <- consumer.StartConsuming() }()
	defer func() {
		consumer.Stop()
		s.NoError(<-done)
	}()

	body, err := json.Marshal(models.ChapterPublishedEvent{StoryID: 9, ChapterID: 90})
	s.Require().NoError(err)
	s.Require().NoError(ch.PublishWithContext(s.ctx, "", "chapter_events_test", false, false, amqp.Publishing{
		ContentType: "application/json", Body: body,
	}))

	select {
	case storyID := <-invalidator.calls:
		s.Equal(int64(9), storyID)
	case <-time.After(10 * time.Second):
		s.Fail("chapter event was not consumed")
	}
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
