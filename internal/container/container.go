package container

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-signup-flow/config"
	"github.com/oksasatya/go-signup-flow/internal/domain/repository"
	handlers "github.com/oksasatya/go-signup-flow/internal/interface/http"
	"github.com/oksasatya/go-signup-flow/internal/notification"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
	"github.com/oksasatya/go-signup-flow/pkg/mailer"
)

// app-level container to share constructed components across packages
// Router can auto-wire modules from these singletons.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	userStore   repository.UserStore

	mailgunClient *mailer.Mailgun
	rabbitPub     *helpers.RabbitPublisher
	esClient      *elasticsearch.Client
	smsFunc       notification.SMSFunc
	hook          handlers.CompletionHook
)

func SetConfig(c *config.Config)              { cfg = c }
func GetConfig() *config.Config               { return cfg }
func SetLogger(l *logrus.Logger)              { logger = l }
func GetLogger() *logrus.Logger               { return logger }
func SetPGPool(p *pgxpool.Pool)               { pgPool = p }
func GetPGPool() *pgxpool.Pool                { return pgPool }
func SetRedis(r *redis.Client)                { redisClient = r }
func GetRedis() *redis.Client                 { return redisClient }
func SetUserStore(s repository.UserStore)     { userStore = s }
func GetUserStore() repository.UserStore      { return userStore }
func SetMailgun(m *mailer.Mailgun)            { mailgunClient = m }
func GetMailgun() *mailer.Mailgun             { return mailgunClient }
func SetRabbitPub(p *helpers.RabbitPublisher) { rabbitPub = p }
func GetRabbitPub() *helpers.RabbitPublisher  { return rabbitPub }
func SetES(c *elasticsearch.Client)           { esClient = c }
func GetES() *elasticsearch.Client            { return esClient }

// SetSMSFunc installs the host's SMS gateway. Without one, SMS codes are only logged outside production.
func SetSMSFunc(f notification.SMSFunc) { smsFunc = f }
func GetSMSFunc() notification.SMSFunc  { return smsFunc }

// SetCompletionHook installs a hook run after signup and verification, e.g. to start a session.
func SetCompletionHook(h handlers.CompletionHook) { hook = h }
func GetCompletionHook() handlers.CompletionHook  { return hook }
