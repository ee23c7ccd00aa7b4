/*
 * Copyright (c) "Robsdedude"
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package neo4j

// AuthToken contains credentials to be sent over to the database server.
type AuthToken struct {
	tokens map[string]any
}

const keyScheme = "scheme"
const schemeNone = "none"
const schemeBasic = "basic"
const schemeKerberos = "kerberos"
const schemeBearer = "bearer"
const keyPrincipal = "principal"
const keyCredentials = "credentials"
const keyRealm = "realm"

// NoAuth generates an empty authentication token.
func NoAuth() AuthToken {
	return AuthToken{tokens: map[string]any{
		keyScheme: schemeNone,
	}}
}

// BasicAuth generates a basic authentication token with username and
// password. Realm is optional.
func BasicAuth(username string, password string, realm string) AuthToken {
	token := AuthToken{tokens: map[string]any{
		keyScheme:      schemeBasic,
		keyPrincipal:   username,
		keyCredentials: password,
	}}
	if realm != "" {
		token.tokens[keyRealm] = realm
	}
	return token
}

// KerberosAuth generates a Kerberos authentication token with the given
// base-64 encoded ticket.
func KerberosAuth(ticket string) AuthToken {
	return AuthToken{tokens: map[string]any{
		keyScheme: schemeKerberos,
		// Backend always expects a principal, even if it is empty.
		keyPrincipal:   "",
		keyCredentials: ticket,
	}}
}

// BearerAuth generates an authentication token with the given base-64
// encoded token, typically obtained from an OAuth2 identity provider.
func BearerAuth(token string) AuthToken {
	return AuthToken{tokens: map[string]any{
		keyScheme:      schemeBearer,
		keyCredentials: token,
	}}
}

// CustomAuth generates a token with a custom authentication scheme, handled
// by a server-side plugin.
func CustomAuth(scheme string, username string, password string, realm string, parameters map[string]any) AuthToken {
	token := AuthToken{tokens: map[string]any{
		keyScheme:    scheme,
		keyPrincipal: username,
	}}
	if password != "" {
		token.tokens[keyCredentials] = password
	}
	if realm != "" {
		token.tokens[keyRealm] = realm
	}
	if len(parameters) > 0 {
		token.tokens["parameters"] = parameters
	}
	return token
}
