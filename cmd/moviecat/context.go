package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gurre/s3streamer"
	"github.com/spf13/cobra"

	"github.com/gurre/moviecat/account"
	"github.com/gurre/moviecat/aws"
	"github.com/gurre/moviecat/catalog"
	"github.com/gurre/moviecat/catalogstore"
	"github.com/gurre/moviecat/config"
	"github.com/gurre/moviecat/mediastore"
)

// clients are the AWS dependencies of every command.
type clients struct {
	dynamo    aws.DynamoDBAdminClient
	s3        aws.S3Client
	presigner aws.S3Presigner
	streamer  s3streamer.Streamer
	iam       aws.IAMClient
}

type clientFactory func(ctx context.Context, cfg *config.Config) (*clients, error)

type commandContext struct {
	configFlag   string
	regionFlag   string
	tableFlag    string
	bucketFlag   string
	endpointFlag string
	userFlag     string
	jsonFlag     bool

	newClients clientFactory

	config *config.Config
	logger *slog.Logger

	clientsOnce sync.Once
	clients     *clients
	clientsErr  error
}

func newCommandContext(newClients clientFactory) *commandContext {
	return &commandContext{newClients: newClients}
}

// init loads the configuration, applies flag overrides and builds the logger.
func (c *commandContext) init(cmd *cobra.Command) error {
	cfg, err := config.Load(strings.TrimSpace(c.configFlag))
	if err != nil {
		return err
	}
	if c.regionFlag != "" {
		cfg.Region = c.regionFlag
	}
	if c.tableFlag != "" {
		cfg.MoviesTable = c.tableFlag
	}
	if c.bucketFlag != "" {
		cfg.MediaBucket = c.bucketFlag
	}
	if c.endpointFlag != "" {
		cfg.Endpoint = c.endpointFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.config = cfg

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.logger = logger
	slog.SetDefault(logger)
	return nil
}

func (c *commandContext) awsClients(ctx context.Context) (*clients, error) {
	c.clientsOnce.Do(func() {
		c.clients, c.clientsErr = c.newClients(ctx, c.config)
	})
	return c.clients, c.clientsErr
}

func (c *commandContext) movieStore(ctx context.Context) (*catalogstore.DynamoStore, error) {
	cl, err := c.awsClients(ctx)
	if err != nil {
		return nil, err
	}
	return catalogstore.NewDynamoStore(cl.dynamo, c.config.MoviesTable,
		catalogstore.WithGenreIndex(c.config.GenreIndex),
		catalogstore.WithLogger(c.logger),
	), nil
}

func (c *commandContext) catalogService(ctx context.Context) (*catalog.Service, error) {
	store, err := c.movieStore(ctx)
	if err != nil {
		return nil, err
	}
	cl, err := c.awsClients(ctx)
	if err != nil {
		return nil, err
	}
	media := mediastore.New(cl.s3, cl.presigner, c.config.MediaBucket, c.logger)
	return catalog.New(store, media, catalog.WithLogger(c.logger)), nil
}

// withAccounts opens the users database for the duration of fn.
func (c *commandContext) withAccounts(fn func(*account.Service) error) error {
	store, err := account.OpenSQLite(c.config.UsersDB)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(account.New(store, c.config.PasswordCost, c.logger))
}

func (c *commandContext) actingUser() (string, error) {
	user := strings.TrimSpace(c.userFlag)
	if user == "" {
		return "", errors.New("--user is required for this command")
	}
	return user, nil
}
