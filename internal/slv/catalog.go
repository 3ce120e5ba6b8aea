package slv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

// GetRootZone 读取用户 profile，返回根 geoZone ID
func (c *Client) GetRootZone(ctx context.Context, sess *Session) (string, error) {
	resp, err := c.apiRequest(sess, methodGetProfileProperties).
		SetContext(ctx).
		Get(assetAPIPath)
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", methodGetProfileProperties, err)
	}
	if err := checkResponse(methodGetProfileProperties, resp); err != nil {
		return "", err
	}

	var props []profileProperty
	if err := json.Unmarshal(resp.Body(), &props); err != nil {
		return "", fmt.Errorf("%w: decode %s response: %v", ErrUpstream, methodGetProfileProperties, err)
	}

	for _, p := range props {
		if p.Key == c.opts.RootZoneKey {
			c.logger.Info("Found root geoZone", zap.String("geo_zone_id", string(p.Value)))
			return string(p.Value), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrConfigNotFound, c.opts.RootZoneKey)
}

// ListDevices 递归获取 geoZone 下的所有设备，只保留指定分类（摄像头、控制器、电表等被过滤）
func (c *Client) ListDevices(ctx context.Context, sess *Session, zoneID, category string) ([]models.Device, error) {
	start := time.Now()
	resp, err := c.apiRequest(sess, methodGetGeoZoneDevices).
		SetContext(ctx).
		SetFormData(map[string]string{
			"geoZoneId": zoneID,
			"recurse":   strconv.FormatBool(true),
		}).
		Post(assetAPIPath)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", methodGetGeoZoneDevices, err)
	}
	c.logger.Debug("getGeoZoneDevices request finished",
		zap.Duration("duration", time.Since(start)),
	)
	if err := checkResponse(methodGetGeoZoneDevices, resp); err != nil {
		return nil, err
	}

	var dtos []deviceDTO
	if err := json.Unmarshal(resp.Body(), &dtos); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", ErrUpstream, methodGetGeoZoneDevices, err)
	}

	devices := make([]models.Device, 0, len(dtos))
	for _, d := range dtos {
		if d.CategoryStrID != category {
			continue
		}
		devices = append(devices, d.toModel())
	}

	c.logger.Info("Listed SLV devices",
		zap.String("geo_zone_id", zoneID),
		zap.String("category", category),
		zap.Int("total", len(dtos)),
		zap.Int("matched", len(devices)),
	)

	return devices, nil
}
