/*
Package auth implements pcsd's token authentication.

Only the hacluster account may log in. A successful login issues a random
UUID token which is appended to pcs_users.conf and stays valid until the file
is rewritten without it; tokens have no expiry. Peers present the token as a
bearer header or a "token" cookie on every /remote call.

Passwords are checked by a PasswordVerifier. The default StoreVerifier uses
bcrypt hashes written by "pcsd user create"; binaries built with the pam tag
can use the system PAM stack instead.

Browser logins get a signed session cookie from SessionManager instead of a
token.
*/
package auth
