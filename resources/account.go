package resources

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"igclient/client"
)

// Account serves the logged-in account's own settings surface.
type Account struct {
	f *Facade
}

// CurrentUser fetches the full editable profile of the session owner.
func (a *Account) CurrentUser() (User, error) {
	result, err := a.f.session.PrivateRequest("accounts/current_user/?edit=true")
	if err != nil {
		return User{}, err
	}
	raw, ok := result["user"].(map[string]any)
	if !ok {
		return User{}, fmt.Errorf("current_user response without user")
	}
	var user User
	if err := decodeInto(raw, &user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	a.f.cacheUser(user)
	return user, nil
}

// SetBiography updates the profile biography.
func (a *Account) SetBiography(text string) error {
	data := map[string]any{
		"raw_text":  text,
		"_uid":      strconv.FormatInt(a.f.session.UserID(), 10),
		"device_id": uuid.New().String(),
		"_uuid":     uuid.New().String(),
	}
	_, err := a.f.session.PrivateRequest("accounts/set_biography/", client.WithData(data))
	return err
}

// ChangePassword rotates the account password. Both the old and the new
// password travel in encrypted envelopes.
func (a *Account) ChangePassword(oldPassword, newPassword string) error {
	encOld, err := a.f.session.PasswordEncrypt(oldPassword)
	if err != nil {
		return err
	}
	encNew, err := a.f.session.PasswordEncrypt(newPassword)
	if err != nil {
		return err
	}
	data := map[string]any{
		"enc_old_password":  encOld,
		"enc_new_password1": encNew,
		"enc_new_password2": encNew,
		"_uid":              strconv.FormatInt(a.f.session.UserID(), 10),
		"_uuid":             uuid.New().String(),
	}
	_, err = a.f.session.PrivateRequest("accounts/change_password/", client.WithData(data))
	return err
}

// ResetPassword requests a recovery email through the web form. The server
// often answers this endpoint with a redirect to the login wall even when
// the email was sent, which surfaces as *client.ClientLoginRequired.
func (a *Account) ResetPassword(emailOrUsername string) (map[string]any, error) {
	data := map[string]any{
		"email_or_username":         emailOrUsername,
		"recaptcha_challenge_field": "",
	}
	headers := map[string]string{
		"X-CSRFToken":      a.f.session.CSRFToken(),
		"X-Requested-With": "XMLHttpRequest",
	}
	return a.f.session.PublicRequestJSON("accounts/account_recovery_send_ajax/",
		client.WithData(data), client.WithHeaders(headers))
}
