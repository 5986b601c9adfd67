package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type memUserRepo struct {
	nextID uint
	users  map[string]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: make(map[string]*models.User)}
}

func (m *memUserRepo) CreateUser(user *models.User) error {
	if _, exists := m.users[user.Email]; exists {
		return gorm.ErrDuplicatedKey
	}
	user.ID = m.nextID
	m.nextID++
	cp := *user
	m.users[user.Email] = &cp
	return nil
}

func (m *memUserRepo) GetUserByID(id uint) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memUserRepo) GetUserByEmail(email string) (*models.User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

const signUpBody = `{
	"name": "Dana",
	"email": "dana@formadex.test",
	"password": "long-enough-pw",
	"role": "trainer"
}`

func TestSignUp_CreatesUserWithHashedPassword(t *testing.T) {
	e := newTestEcho()
	users := newMemUserRepo()
	h := NewAuthHandler(users, "test-secret")

	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/auth/signup", signUpBody, nil)
	require.NoError(t, h.SignUp(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	stored, err := users.GetUserByEmail("dana@formadex.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTrainer, stored.Role)
	assert.NotEqual(t, "long-enough-pw", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("long-enough-pw")))
}

func TestSignUp_DuplicateEmailConflicts(t *testing.T) {
	e := newTestEcho()
	users := newMemUserRepo()
	h := NewAuthHandler(users, "test-secret")

	c, _ := newJSONContext(e, http.MethodPost, "/api/v1/auth/signup", signUpBody, nil)
	require.NoError(t, h.SignUp(c))

	c2, _ := newJSONContext(e, http.MethodPost, "/api/v1/auth/signup", signUpBody, nil)
	err := h.SignUp(c2)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httpStatus(err))
}

func TestSignUp_UnknownRoleRejected(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(newMemUserRepo(), "test-secret")

	body := `{"name": "X", "email": "x@formadex.test", "password": "long-enough-pw", "role": "superuser"}`
	c, _ := newJSONContext(e, http.MethodPost, "/api/v1/auth/signup", body, nil)
	err := h.SignUp(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))
}

func TestSignIn_IssuesTokenWithRoleClaim(t *testing.T) {
	e := newTestEcho()
	users := newMemUserRepo()
	h := NewAuthHandler(users, "test-secret")

	c, _ := newJSONContext(e, http.MethodPost, "/api/v1/auth/signup", signUpBody, nil)
	require.NoError(t, h.SignUp(c))

	c2, rec := newJSONContext(e, http.MethodPost, "/api/v1/auth/signin",
		`{"email": "dana@formadex.test", "password": "long-enough-pw"}`, nil)
	require.NoError(t, h.SignIn(c2))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)

	claims := &models.JwtCustomClaims{}
	_, err := jwt.ParseWithClaims(resp.Data.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTrainer, claims.Role)
	assert.Equal(t, "dana@formadex.test", claims.Email)
	assert.NotZero(t, claims.UserID)
}

func TestSignIn_WrongPasswordRejected(t *testing.T) {
	e := newTestEcho()
	users := newMemUserRepo()
	h := NewAuthHandler(users, "test-secret")

	c, _ := newJSONContext(e, http.MethodPost, "/api/v1/auth/signup", signUpBody, nil)
	require.NoError(t, h.SignUp(c))

	c2, _ := newJSONContext(e, http.MethodPost, "/api/v1/auth/signin",
		`{"email": "dana@formadex.test", "password": "not-the-password"}`, nil)
	err := h.SignIn(c2)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httpStatus(err))
}
