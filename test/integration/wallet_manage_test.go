package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TrackedWallet struct {
	ID       uint   `json:"id"`
	Address  string `json:"address"`
	Alias    string `json:"alias"`
	IsActive bool   `json:"is_active"`
	Tags     string `json:"tags"`
}

const testWalletAddress = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

func TestWalletAPI(t *testing.T) {
	requireService(t)

	// Make the run repeatable even when a previous one was interrupted
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/wallets/%s", BaseURL, testWalletAddress), nil)
	if resp, err := http.DefaultClient.Do(req); err == nil {
		resp.Body.Close()
	}

	t.Run("Create Wallet", func(t *testing.T) {
		payload, err := json.Marshal(map[string]interface{}{
			"address": testWalletAddress,
			"alias":   "integration-whale",
			"tags":    []string{"test", "whale"},
		})
		require.NoError(t, err)

		resp, err := http.Post(BaseURL+"/wallets", "application/json", bytes.NewBuffer(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var wallet TrackedWallet
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&wallet))
		assert.Equal(t, testWalletAddress, wallet.Address)
		assert.Equal(t, "integration-whale", wallet.Alias)
		assert.True(t, wallet.IsActive)
	})

	t.Run("Create Duplicate Wallet", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"address": testWalletAddress})
		resp, err := http.Post(BaseURL+"/wallets", "application/json", bytes.NewBuffer(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("Create Wallet With Invalid Address", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"address": "not-a-solana-address"})
		resp, err := http.Post(BaseURL+"/wallets", "application/json", bytes.NewBuffer(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("List Wallets", func(t *testing.T) {
		resp, err := http.Get(BaseURL + "/wallets")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var wallets []TrackedWallet
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&wallets))
		found := false
		for _, w := range wallets {
			if w.Address == testWalletAddress {
				found = true
			}
		}
		assert.True(t, found, "created wallet must appear in the list")
	})

	t.Run("Update Wallet", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]interface{}{
			"alias":     "renamed-whale",
			"is_active": false,
		})
		req, err := http.NewRequest(http.MethodPut,
			fmt.Sprintf("%s/wallets/%s", BaseURL, testWalletAddress), bytes.NewBuffer(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var wallet TrackedWallet
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&wallet))
		assert.Equal(t, "renamed-whale", wallet.Alias)
		assert.False(t, wallet.IsActive)
	})

	t.Run("Delete Wallet", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete,
			fmt.Sprintf("%s/wallets/%s", BaseURL, testWalletAddress), nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Get Deleted Wallet", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/wallets/%s", BaseURL, testWalletAddress))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
