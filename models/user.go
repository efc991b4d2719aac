package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserFieldsRequired   = errors.New("username & password required")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrUserInactive         = errors.New("user is disabled")
	ErrRegistrationDisabled = errors.New("registration disabled")
	ErrUsernameTaken        = errors.New("username already exists")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)

type User struct {
	ID           int        `gorm:"primary_key" json:"id"`
	Username     string     `gorm:"size:100;not null;uniqueIndex" json:"username"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	FullName     string     `gorm:"size:200" json:"full_name"`
	Email        *string    `gorm:"size:200" json:"email"`
	Mobile       string     `gorm:"size:30" json:"mobile"`
	Role         UserRole   `gorm:"size:20;not null;default:AGENT" json:"role"`
	PartnerCode  string     `gorm:"size:50" json:"partner_code"`
	DeviceId     string     `gorm:"size:100" json:"device_id"`
	IsActive     *bool      `gorm:"not null" json:"is_active"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	Mobile      string `json:"mobile"`
	PartnerCode string `json:"partner_code"`
	DeviceId    string `json:"device_id"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func (u *User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (input NewUser) toUser(role UserRole) (*User, error) {
	hash, err := utils.HashPasswordString(input.Password)
	if err != nil {
		return nil, err
	}
	active := true
	user := &User{
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(input.FullName),
		Mobile:       strings.TrimSpace(input.Mobile),
		Role:         role,
		PartnerCode:  strings.TrimSpace(input.PartnerCode),
		DeviceId:     strings.TrimSpace(input.DeviceId),
		IsActive:     &active,
	}
	if user.FullName == "" {
		user.FullName = user.Username
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		user.Email = &email
	}
	return user, nil
}

// RegisterFirstUser creates the bootstrap ADMIN. It only succeeds while the
// users table is empty.
func RegisterFirstUser(ctx context.Context, input NewUser) (*User, error) {
	db := config.GetDB().WithContext(ctx)
	if strings.TrimSpace(input.Username) == "" || input.Password == "" {
		return nil, ErrUserFieldsRequired
	}
	user, err := input.toUser(UserRoleAdmin)
	if err != nil {
		return nil, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRegistrationDisabled
		}
		return createUser(tx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser is the admin path; role defaults to AGENT.
func CreateUser(ctx context.Context, input NewUser) (*User, error) {
	if strings.TrimSpace(input.Username) == "" || input.Password == "" {
		return nil, ErrUserFieldsRequired
	}
	role, ok := ParseUserRole(input.Role)
	if !ok {
		return nil, ErrInvalidRole
	}
	user, err := input.toUser(role)
	if err != nil {
		return nil, err
	}
	if err := createUser(config.GetDB().WithContext(ctx), user); err != nil {
		return nil, err
	}
	return user, nil
}

func createUser(tx *gorm.DB, user *User) error {
	var exists int64
	if err := tx.Model(&User{}).Where("username = ?", user.Username).Count(&exists).Error; err != nil {
		return err
	}
	if exists > 0 {
		return ErrUsernameTaken
	}
	if err := tx.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := config.GetDB().WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := config.GetDB().WithContext(ctx).Order("id").Find(&users).Error
	return users, err
}

func Login(ctx context.Context, username string, password string, deviceId string) (*TokenPair, error) {
	db := config.GetDB().WithContext(ctx)

	user, err := GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// check login credentials
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active() {
		return nil, ErrUserInactive
	}

	access, err := utils.JwtGenerate(user.Username, user.ID, user.Role.String())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	refresh := RefreshToken{
		Token:     uuid.NewString(),
		UserId:    user.ID,
		DeviceId:  strings.TrimSpace(deviceId),
		ExpiresAt: now.Add(utils.RefreshTokenLifespan()),
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&refresh).Error; err != nil {
			return err
		}
		return tx.Model(&User{}).Where("id = ?", user.ID).Update("last_login", now).Error
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "bearer",
		ExpiresIn:    int(utils.AccessTokenLifespan().Seconds()),
	}, nil
}

// RefreshAccessToken issues a new access token; the refresh token itself is
// not rotated.
func RefreshAccessToken(ctx context.Context, token string) (*TokenPair, error) {
	db := config.GetDB().WithContext(ctx)

	var rt RefreshToken
	if err := db.Where("token = ?", token).Take(&rt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if rt.Revoked {
		return nil, ErrInvalidRefreshToken
	}
	if time.Now().After(rt.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	var user User
	if err := db.Where("id = ?", rt.UserId).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !user.Active() {
		return nil, ErrUserInactive
	}

	access, err := utils.JwtGenerate(user.Username, user.ID, user.Role.String())
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(utils.AccessTokenLifespan().Seconds()),
	}, nil
}

func Logout(ctx context.Context, token string) error {
	res := config.GetDB().WithContext(ctx).
		Model(&RefreshToken{}).
		Where("token = ?", token).
		Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// resetPassword replaces the password hash for username.
func resetPassword(tx *gorm.DB, username string, newPassword string) error {
	hash, err := utils.HashPasswordString(newPassword)
	if err != nil {
		return err
	}
	res := tx.Model(&User{}).Where("username = ?", username).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// EnsureAdmin creates username as an active ADMIN, or resets the password,
// role and active flag of an existing user. It reports whether a row was
// created.
func EnsureAdmin(ctx context.Context, username string, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, ErrUserFieldsRequired
	}
	created := false
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing User
		err := tx.Where("username = ?", username).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user, err := NewUser{Username: username, Password: password}.toUser(UserRoleAdmin)
			if err != nil {
				return err
			}
			created = true
			return createUser(tx, user)
		}
		if err != nil {
			return err
		}
		hash, err := utils.HashPasswordString(password)
		if err != nil {
			return err
		}
		return tx.Model(&User{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"password_hash": hash,
			"role":          UserRoleAdmin,
			"is_active":     true,
		}).Error
	})
	return created, err
}
