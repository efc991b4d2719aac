package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTemplateKeyRequired = errors.New("key required")
	ErrTemplateBusy        = errors.New("template is being updated, retry")
)

const (
	otpTemplateKeyPrefix     = "otp_template_whatsapp_"
	genericTemplateKeyPrefix = "template_generic_"
	appSettingCacheTTL       = 10 * time.Minute

	DefaultOtpTemplateEn = "Dear {username} ji,\n\nYour OTP is: {otp}\n\nValid for {minutes} minutes.\n- EasyAdvisor"
	DefaultOtpTemplateHi = "प्रिय {username} जी,\n\nआपका OTP है: {otp}\n\n{minutes} मिनट के लिए मान्य।\n- EasyAdvisor"
)

type AppSetting struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Key       string    `gorm:"column:key;size:191;not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type OtpTemplate struct {
	Lang     string `json:"lang"`
	Template string `json:"template"`
}

type GenericTemplate struct {
	Key       string `json:"key"`
	Template  string `json:"template"`
	Version   string `json:"version"`
	UpdatedAt string `json:"updated_at,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
	Found     bool   `json:"found"`
}

// stored JSON document for a generic template
type genericTemplateValue struct {
	Template  string `json:"template"`
	Version   string `json:"version"`
	UpdatedAt string `json:"updated_at"`
	UpdatedBy string `json:"updated_by"`
}

func getAppSetting(db *gorm.DB, key string) (string, bool, error) {
	var setting AppSetting
	err := db.Where(&AppSetting{Key: key}).Take(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return setting.Value, true, nil
}

func setAppSetting(db *gorm.DB, key string, value string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&AppSetting{Key: key, Value: value}).Error
}

func appSettingCacheKey(key string) string {
	return "app_setting:" + key
}

// GetAppSetting reads through the redis cache when redis is connected.
// Missing keys are not cached.
func GetAppSetting(ctx context.Context, key string) (string, bool, error) {
	var cached string
	if ok, err := config.GetRedisObject(appSettingCacheKey(key), &cached); err == nil && ok {
		return cached, true, nil
	}
	value, found, err := getAppSetting(config.GetDB().WithContext(ctx), key)
	if err != nil || !found {
		return value, found, err
	}
	if err := config.SetRedisObject(appSettingCacheKey(key), value, appSettingCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "models", "GetAppSetting", "cache app_settings", key, err)
	}
	return value, true, nil
}

func SetAppSetting(ctx context.Context, key string, value string) error {
	if err := setAppSetting(config.GetDB().WithContext(ctx), key, value); err != nil {
		return err
	}
	invalidateAppSetting(key)
	return nil
}

func invalidateAppSetting(key string) {
	if err := config.RemoveRedisKey(appSettingCacheKey(key)); err != nil {
		config.LogError(config.GetLogger(), "models", "invalidateAppSetting", "drop cached app_settings", key, err)
	}
}

// defaultOtpTemplate is English for en* and Hindi for every other language.
func defaultOtpTemplate(lang string) string {
	if strings.HasPrefix(strings.ToLower(lang), "en") {
		return DefaultOtpTemplateEn
	}
	return DefaultOtpTemplateHi
}

// GetOtpTemplate falls back to the built-in text when nothing is stored or
// the store is unreachable.
func GetOtpTemplate(ctx context.Context, lang string) OtpTemplate {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = "en"
	}
	value, found, err := GetAppSetting(ctx, otpTemplateKeyPrefix+lang)
	if err != nil {
		config.LogError(config.GetLogger(), "models", "GetOtpTemplate", "read app_settings", lang, err)
	}
	if !found || value == "" {
		return OtpTemplate{Lang: lang, Template: defaultOtpTemplate(lang)}
	}
	return OtpTemplate{Lang: lang, Template: value}
}

func SetOtpTemplate(ctx context.Context, lang string, template string) error {
	lang = strings.TrimSpace(lang)
	if lang == "" || template == "" {
		return errors.New("lang & template required")
	}
	return SetAppSetting(ctx, otpTemplateKeyPrefix+lang, template)
}

func GetGenericTemplate(ctx context.Context, key string) (*GenericTemplate, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrTemplateKeyRequired
	}
	raw, found, err := GetAppSetting(ctx, genericTemplateKeyPrefix+key)
	if err != nil {
		return nil, err
	}
	if !found {
		return &GenericTemplate{Key: key, Version: "0.0"}, nil
	}
	var v genericTemplateValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// legacy rows hold the bare template text
		return &GenericTemplate{Key: key, Template: raw, Version: "1.0", Found: true}, nil
	}
	if v.Version == "" {
		v.Version = "1.0"
	}
	return &GenericTemplate{
		Key:       key,
		Template:  v.Template,
		Version:   v.Version,
		UpdatedAt: v.UpdatedAt,
		UpdatedBy: v.UpdatedBy,
		Found:     true,
	}, nil
}

// SetGenericTemplate stores template under key with the next version.
// Concurrent writers for the same key are serialised with a redis lock when
// redis is connected.
func SetGenericTemplate(ctx context.Context, key string, template string, actor string) (*GenericTemplate, error) {
	logger := config.GetLogger()
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrTemplateKeyRequired
	}
	if actor == "" {
		actor = "admin"
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "lock:template:"+key, 10*time.Second, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 30),
		})
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTemplateBusy
		} else if err != nil {
			config.LogError(logger, "models", "SetGenericTemplate", "obtain template lock", key, err)
		} else {
			defer func() {
				_ = lock.Release(ctx)
			}()
		}
	}

	storageKey := genericTemplateKeyPrefix + key
	var result GenericTemplate
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version := "1.0"
		raw, found, err := getAppSetting(tx, storageKey)
		if err != nil {
			return err
		}
		// a legacy plain-text row is replaced at 1.0; a stored document
		// without a version counts as 1.0
		var prev genericTemplateValue
		if found && json.Unmarshal([]byte(raw), &prev) == nil {
			if prev.Version == "" {
				prev.Version = "1.0"
			}
			version = BumpVersion(prev.Version)
		}
		value := genericTemplateValue{
			Template:  template,
			Version:   version,
			UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
			UpdatedBy: actor,
		}
		b, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if err := setAppSetting(tx, storageKey, string(b)); err != nil {
			return err
		}
		result = GenericTemplate{
			Key:       key,
			Template:  value.Template,
			Version:   value.Version,
			UpdatedAt: value.UpdatedAt,
			UpdatedBy: value.UpdatedBy,
			Found:     true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidateAppSetting(storageKey)
	return &result, nil
}

// BumpVersion turns "major.minor" into "major.minor+1"; anything else gets
// ".1" appended.
func BumpVersion(prev string) string {
	parts := strings.Split(prev, ".")
	if len(parts) == 2 {
		if minor, err := strconv.Atoi(parts[1]); err == nil {
			return fmt.Sprintf("%s.%d", parts[0], minor+1)
		}
	}
	return prev + ".1"
}

// RenderTemplate replaces {name} placeholders with vars[name].
func RenderTemplate(tpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
