package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/learnwise/backend/apps/api/echo"
	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/advisor"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/quiz"
	"github.com/learnwise/backend/core/tutor"
	"github.com/learnwise/backend/core/user"
	emailsvc "github.com/learnwise/backend/services/email"
	eventsvc "github.com/learnwise/backend/services/events"
	logsvc "github.com/learnwise/backend/services/logger"
	tutorsvc "github.com/learnwise/backend/services/tutor"
	"github.com/learnwise/backend/storage/database"
	sqlxrepos "github.com/learnwise/backend/storage/database/sqlx"
	"github.com/learnwise/backend/storage/kvstore"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type repositories struct {
	dig.Out
	Users   *sqlxrepos.UserRepository
	Lessons *sqlxrepos.LessonRepository
	Quizzes *sqlxrepos.QuizRepository
	Advisor *sqlxrepos.AdvisorRepository
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	UserSvc    *user.Service
	LessonSvc  *lesson.Service
	QuizSvc    *quiz.Service
	AdvisorSvc *advisor.Service
	TutorSvc   *tutor.Service
	Validate   *validator.Validate
	Translator ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, conf.Database.Engine); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newRepositories(db *sqlx.DB, conf *core.Config) repositories {
	engine := conf.Database.Engine
	return repositories{
		Users:   sqlxrepos.NewUserRepository(db, engine),
		Lessons: sqlxrepos.NewLessonRepository(db, engine),
		Quizzes: sqlxrepos.NewQuizRepository(db, engine),
		Advisor: sqlxrepos.NewAdvisorRepository(db, engine),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newEventPublisher falls back to the application log when no Kafka broker is configured.
func newEventPublisher(conf *core.Config, logger core.Logger) core.EventPublisher {
	if len(conf.Kafka.Brokers) == 0 {
		return eventsvc.NewLogPublisher(logger)
	}
	return eventsvc.NewKafkaPublisher(conf)
}

func newKVStore() core.KVStore {
	return kvstore.NewMemoryStore()
}

func newUserService(db core.DB, repo *sqlxrepos.UserRepository, mailSvc core.EmailService, store core.KVStore, conf *core.Config) *user.Service {
	return user.NewService(db, repo, mailSvc, store, conf)
}

func newLessonService(db core.DB, repo *sqlxrepos.LessonRepository, users *user.Service, events core.EventPublisher, logger core.Logger) *lesson.Service {
	return lesson.NewService(db, repo, users, events, logger)
}

func newQuizService(
	db core.DB,
	repo *sqlxrepos.QuizRepository,
	lessons *lesson.Service,
	users *user.Service,
	events core.EventPublisher,
	logger core.Logger,
) *quiz.Service {
	return quiz.NewService(db, repo, lessons, users, events, logger)
}

func newAdvisorService(repo *sqlxrepos.AdvisorRepository, users *user.Service, lessons *lesson.Service, conf *core.Config) *advisor.Service {
	return advisor.NewService(repo, users, lessons, conf)
}

// newTutorService leaves the tutor unconfigured when the provider cannot be created.
func newTutorService(conf *core.Config, logger core.Logger) *tutor.Service {
	var provider tutor.Provider
	gemini, err := tutorsvc.NewGeminiProvider(context.Background(), conf)
	switch {
	case err != nil:
		logger.Error(fmt.Sprintf("creating tutor provider: %v", err), err)
	case gemini != nil:
		provider = gemini
	default:
		logger.Warn("tutor provider not configured")
	}
	return tutor.NewService(provider, logger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		LessonSvc:  p.LessonSvc,
		QuizSvc:    p.QuizSvc,
		AdvisorSvc: p.AdvisorSvc,
		TutorSvc:   p.TutorSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newEventPublisher))
	must(c.Provide(newKVStore))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newUserService))
	must(c.Provide(newLessonService))
	must(c.Provide(newQuizService))
	must(c.Provide(newAdvisorService))
	must(c.Provide(newTutorService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
