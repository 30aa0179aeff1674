package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/evaluator"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/service"
)

// 命令流与消费者组
const (
	CommandStream = "glucose:commands"
	consumerGroup = "bg-readings-api"
)

// 支持的命令
const (
	CommandCreateReading        = "create_reading"
	CommandEvaluateCounts       = "evaluate_counts"
	CommandReconcilePercentages = "reconcile_percentages"
	CommandEvaluateActivity     = "evaluate_activity"
	CommandClearAlerts          = "clear_alerts"
)

// CommandConsumer 命令消费者
// 从 Redis Streams 读取上游下发的评估/确认命令并调用业务服务。
// 单条命令失败只记录日志并 ACK，不阻塞后续命令。
type CommandConsumer struct {
	client       *redis.Client
	svc          *service.GlucoseService
	logger       *zap.Logger
	consumerName string
}

// NewCommandConsumer 创建命令消费者
func NewCommandConsumer(client *redis.Client, svc *service.GlucoseService, consumerName string, logger *zap.Logger) *CommandConsumer {
	return &CommandConsumer{
		client:       client,
		svc:          svc,
		logger:       logger,
		consumerName: consumerName,
	}
}

// Start 启动消费循环，直到上下文取消
func (c *CommandConsumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("Command consumer started",
		zap.String("stream", CommandStream),
		zap.String("consumer", c.consumerName),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Command consumer stopped")
			return nil
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: c.consumerName,
			Streams:  []string{CommandStream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			c.logger.Error("Failed to read command stream", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if err := c.handleMessage(ctx, msg); err != nil {
					c.logger.Error("Failed to handle command",
						zap.String("message_id", msg.ID),
						zap.Error(err),
					)
				}
				c.client.XAck(ctx, CommandStream, consumerGroup, msg.ID)
			}
		}
	}
}

func (c *CommandConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, CommandStream, consumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *CommandConsumer) handleMessage(ctx context.Context, msg redis.XMessage) error {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("message %s has no data field", msg.ID)
	}

	var envelope struct {
		Command string          `json:"command"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal command envelope: %w", err)
	}

	return c.Dispatch(ctx, envelope.Command, envelope.Data)
}

// Dispatch 按命令类型调用业务服务
func (c *CommandConsumer) Dispatch(ctx context.Context, command string, data json.RawMessage) error {
	switch command {
	case CommandCreateReading:
		return c.handleCreateReading(ctx, data)
	case CommandEvaluateCounts:
		return c.handleEvaluateCounts(ctx, data)
	case CommandReconcilePercentages:
		return c.handleReconcilePercentages(ctx, data)
	case CommandEvaluateActivity:
		return c.handleEvaluateActivity(ctx, data)
	case CommandClearAlerts:
		return c.handleClearAlerts(ctx, data)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

type createReadingCommand struct {
	PatientID         string  `json:"patient_id"`
	BloodGlucoseValue float64 `json:"blood_glucose_value"`
	Units             string  `json:"units"`
	MeasuredAt        string  `json:"measured_at"`
	Banding           string  `json:"banding"`
	PrandialTag       string  `json:"prandial_tag"`
}

func (c *CommandConsumer) handleCreateReading(ctx context.Context, data json.RawMessage) error {
	var cmd createReadingCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal create_reading: %w", err)
	}

	// RFC3339 自带的偏移保留为读数的原始时区
	measuredAt, err := time.Parse(time.RFC3339, cmd.MeasuredAt)
	if err != nil {
		return fmt.Errorf("invalid measured_at: %w", err)
	}

	reading := &models.Reading{
		PatientID:         cmd.PatientID,
		BloodGlucoseValue: cmd.BloodGlucoseValue,
		Units:             cmd.Units,
		Measured:          models.SplitTimestamp(measuredAt),
		Banding:           parseBanding(cmd.Banding),
		PrandialTag:       parsePrandialTag(cmd.PrandialTag),
	}

	created, err := c.svc.CreateReading(ctx, reading)
	if err != nil {
		return err
	}

	_, err = c.svc.EvaluateCounts(ctx, created.ID)
	return err
}

func (c *CommandConsumer) handleEvaluateCounts(ctx context.Context, data json.RawMessage) error {
	var cmd struct {
		ReadingID string `json:"reading_id"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal evaluate_counts: %w", err)
	}
	_, err := c.svc.EvaluateCounts(ctx, cmd.ReadingID)
	return err
}

func (c *CommandConsumer) handleReconcilePercentages(ctx context.Context, data json.RawMessage) error {
	var cmd struct {
		Patients map[string]evaluator.ThresholdFlags `json:"patients"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal reconcile_percentages: %w", err)
	}
	return c.svc.ReconcilePercentages(ctx, cmd.Patients)
}

func (c *CommandConsumer) handleEvaluateActivity(ctx context.Context, data json.RawMessage) error {
	var cmd struct {
		PatientID string `json:"patient_id"`
		Plans     []struct {
			Created        string `json:"created"`
			ReadingsPerDay int    `json:"readings_per_day"`
			DaysPerWeek    int    `json:"days_per_week"`
		} `json:"plans"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal evaluate_activity: %w", err)
	}

	plans := make([]models.ReadingsPlan, 0, len(cmd.Plans))
	for _, p := range cmd.Plans {
		created, err := time.Parse(time.RFC3339, p.Created)
		if err != nil {
			return fmt.Errorf("invalid plan created time: %w", err)
		}
		plans = append(plans, models.ReadingsPlan{
			Created:        created,
			ReadingsPerDay: p.ReadingsPerDay,
			DaysPerWeek:    p.DaysPerWeek,
		})
	}

	_, err := c.svc.EvaluateActivity(ctx, cmd.PatientID, plans)
	return err
}

func (c *CommandConsumer) handleClearAlerts(ctx context.Context, data json.RawMessage) error {
	var cmd struct {
		PatientID string `json:"patient_id"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal clear_alerts: %w", err)
	}
	_, err := c.svc.ClearAlerts(ctx, cmd.PatientID)
	return err
}

func parseBanding(s string) models.Banding {
	switch strings.ToUpper(s) {
	case "LOW":
		return models.BandingLow
	case "HIGH":
		return models.BandingHigh
	default:
		return models.BandingNormal
	}
}

func parsePrandialTag(s string) models.PrandialTag {
	switch strings.ToUpper(s) {
	case "BEFORE_BREAKFAST":
		return models.PrandialTagBeforeBreakfast
	case "AFTER_BREAKFAST":
		return models.PrandialTagAfterBreakfast
	case "BEFORE_LUNCH":
		return models.PrandialTagBeforeLunch
	case "AFTER_LUNCH":
		return models.PrandialTagAfterLunch
	case "BEFORE_DINNER":
		return models.PrandialTagBeforeDinner
	case "AFTER_DINNER":
		return models.PrandialTagAfterDinner
	case "OTHER":
		return models.PrandialTagOther
	default:
		return models.PrandialTagNone
	}
}
