package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieIssuer = "taxfree-console"

// cookieCodec signs the session identifier into an HS256 JWT so a forged
// cookie never reaches the repository.
type cookieCodec struct {
	name   string
	secret []byte
	ttl    time.Duration
	secure bool
}

func (c cookieCodec) encode(id string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   id,
		Issuer:    cookieIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign cookie: %w", err)
	}
	return signed, nil
}

func (c cookieCodec) decode(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(cookieIssuer))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("session: invalid cookie")
	}
	return claims.Subject, nil
}

func (c cookieCodec) read(r *http.Request) (string, bool) {
	ck, err := r.Cookie(c.name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	id, err := c.decode(ck.Value)
	if err != nil {
		return "", false
	}
	return id, true
}

func (c cookieCodec) write(w http.ResponseWriter, id string, now time.Time) error {
	value, err := c.encode(id, now)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(c.ttl),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c cookieCodec) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
